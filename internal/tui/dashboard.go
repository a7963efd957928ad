// Package tui is the interactive terminal dashboard behind --gui.
package tui

import (
	"context"
	"fmt"
	"time"

	"coinsentry/internal/analysis"
	"coinsentry/internal/domain"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshEvery = 60 * time.Second

// Market is the market service surface the dashboard reads from.
// Forget drops a memoized snapshot so a manual refresh bypasses it.
type Market interface {
	Snapshot(ctx context.Context, symbol string) (*domain.MarketData, error)
	WeeklyExtremes(ctx context.Context, symbol string) (domain.Extremes, error)
	Forget(symbol string)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2)
	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type symbolResult struct {
	Symbol      string
	Data        *domain.MarketData
	Prediction  domain.Prediction
	Opportunity domain.OpportunityScore
	Err         error
}

type refreshMsg []symbolResult

type tickMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	markets Market
	symbols []string

	table    table.Model
	results  map[string]symbolResult
	detail   string // symbol shown in detail view, empty for the table
	loading  bool
	lastLoad time.Time
	err      error
}

func New(markets Market, symbols []string) Model {
	columns := []table.Column{
		{Title: "Symbol", Width: 8},
		{Title: "Price €", Width: 12},
		{Title: "24h %", Width: 8},
		{Title: "RSI", Width: 6},
		{Title: "F&G", Width: 5},
		{Title: "Score", Width: 7},
		{Title: "Recommendation", Width: 28},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(symbols)+1),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return Model{
		markets: markets,
		symbols: symbols,
		table:   t,
		results: make(map[string]symbolResult),
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.detail != "" {
				m.detail = ""
				return m, nil
			}
			return m, tea.Quit
		case "r":
			if !m.loading {
				for _, symbol := range m.symbols {
					m.markets.Forget(symbol)
				}
				m.loading = true
				return m, m.fetchCmd()
			}
			return m, nil
		case "enter":
			if m.detail == "" {
				if row := m.table.SelectedRow(); row != nil {
					m.detail = row[0]
				}
				return m, nil
			}
		}

	case refreshMsg:
		m.loading = false
		m.lastLoad = time.Now()
		m.err = nil
		for _, r := range msg {
			m.results[r.Symbol] = r
		}
		m.table.SetRows(m.rows())
		return m, nil

	case tickMsg:
		if m.loading {
			return m, tickCmd()
		}
		m.loading = true
		return m, tea.Batch(m.fetchCmd(), tickCmd())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	header := titleStyle.Render("coinsentry")
	status := statusStyle.Render(m.statusLine())

	if m.detail != "" {
		return header + "\n" + m.detailView() + "\n" + statusStyle.Render("esc back  q quit")
	}

	body := m.table.View()
	if m.err != nil {
		body += "\n" + errStyle.Render(m.err.Error())
	}
	help := statusStyle.Render("enter detail  r refresh  q quit")
	return header + "\n" + body + "\n" + status + "\n" + help
}

func (m Model) statusLine() string {
	if m.loading {
		return "refreshing..."
	}
	if m.lastLoad.IsZero() {
		return "no data yet"
	}
	return "updated " + m.lastLoad.Format("15:04:05")
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.symbols))
	for _, symbol := range m.symbols {
		r, ok := m.results[symbol]
		if !ok {
			rows = append(rows, table.Row{symbol, "-", "-", "-", "-", "-", "waiting"})
			continue
		}
		if r.Err != nil {
			rows = append(rows, table.Row{symbol, "-", "-", "-", "-", "-", "error: " + r.Err.Error()})
			continue
		}

		p := r.Data.CurrentPrice
		change := fmt.Sprintf("%+.2f", p.Change24h)
		if p.Change24h >= 0 {
			change = upStyle.Render(change)
		} else {
			change = downStyle.Render(change)
		}

		fgi := "-"
		if r.Data.FearGreed > 0 {
			fgi = fmt.Sprintf("%d", r.Data.FearGreed)
		}

		rows = append(rows, table.Row{
			symbol,
			fmt.Sprintf("%.2f", p.PriceEUR),
			change,
			fmt.Sprintf("%.0f", r.Data.Indicators.RSI),
			fgi,
			fmt.Sprintf("%.1f", r.Opportunity.Score),
			r.Opportunity.Recommendation,
		})
	}
	return rows
}

func (m Model) detailView() string {
	r, ok := m.results[m.detail]
	if !ok || r.Err != nil {
		return detailStyle.Render("no data for " + m.detail)
	}

	p := r.Data.CurrentPrice
	ind := r.Data.Indicators

	body := fmt.Sprintf("%s  €%.2f ($%.2f)\n", r.Symbol, p.PriceEUR, p.PriceUSD)
	body += fmt.Sprintf("24h %+.2f%%  high €%.2f  low €%.2f\n\n", p.Change24h, p.High24h, p.Low24h)
	body += fmt.Sprintf("RSI %.1f  MACD hist %+.3f  MA20 %.2f  MA50 %.2f\n", ind.RSI, ind.MACDHistogram, ind.MA20, ind.MA50)
	body += fmt.Sprintf("support %.2f  resistance %.2f  volume %s\n", ind.Support, ind.Resistance, ind.VolumeTrend)
	if r.Data.HasFunding {
		body += fmt.Sprintf("funding %.4f%%  open interest %.0f\n", r.Data.FundingRate, r.Data.OpenInterest)
	}

	body += fmt.Sprintf("\ntrend: %s %s (%d%%)\n", analysis.Arrow(r.Prediction.Type), analysis.Describe(r.Prediction.Type), r.Prediction.Confidence)
	for _, s := range r.Prediction.Signals {
		body += "  " + s + "\n"
	}

	body += fmt.Sprintf("\nscore %.1f/10: %s\n", r.Opportunity.Score, r.Opportunity.Recommendation)
	for _, reason := range r.Opportunity.Reasons {
		body += "  " + reason + "\n"
	}
	return detailStyle.Render(body)
}

func (m Model) fetchCmd() tea.Cmd {
	markets := m.markets
	symbols := m.symbols
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()

		results := make([]symbolResult, 0, len(symbols))
		for _, symbol := range symbols {
			r := symbolResult{Symbol: symbol}
			md, err := markets.Snapshot(ctx, symbol)
			if err != nil {
				r.Err = err
				results = append(results, r)
				continue
			}
			weekly, err := markets.WeeklyExtremes(ctx, symbol)
			if err != nil {
				weekly = domain.Extremes{}
			}
			r.Data = md
			r.Prediction = analysis.Predict(md)
			r.Opportunity = analysis.ScoreOpportunity(md, r.Prediction, weekly)
			results = append(results, r)
		}
		return refreshMsg(results)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run starts the dashboard and blocks until the user quits.
func Run(markets Market, symbols []string) error {
	_, err := tea.NewProgram(New(markets, symbols), tea.WithAltScreen()).Run()
	return err
}
