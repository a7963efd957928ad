package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"coinsentry/internal/domain"

	"github.com/jpillora/backoff"
	"go.opentelemetry.io/otel/trace"
)

const (
	binanceSpotURL    = "https://api.binance.com"
	binanceFuturesURL = "https://fapi.binance.com"

	maxAttempts = 3
)

// EURConverter yields the current USD to EUR rate.
type EURConverter interface {
	USDToEUR(ctx context.Context) float64
}

// BinanceProvider fetches spot tickers, kline history, and futures
// sentiment data (funding rate, open interest) from the public Binance
// REST API. Symbols are internal ("BTC") and mapped to USDT pairs.
type BinanceProvider struct {
	client     *http.Client
	spotURL    string
	futuresURL string
	tracer     trace.Tracer
	limiter    *RateLimiter
	rates      EURConverter
}

// NewBinanceProvider creates a provider with built-in rate limiting, well
// under the public API weight budget.
func NewBinanceProvider(tracer trace.Tracer, rates EURConverter) *BinanceProvider {
	return &BinanceProvider{
		client:     &http.Client{Timeout: 10 * time.Second},
		spotURL:    binanceSpotURL,
		futuresURL: binanceFuturesURL,
		tracer:     tracer,
		limiter:    NewRateLimiter(20, 250*time.Millisecond),
		rates:      rates,
	}
}

func pair(symbol string) string { return symbol + "USDT" }

// FetchTicker fetches the 24h ticker for a symbol.
func (p *BinanceProvider) FetchTicker(ctx context.Context, symbol string) (domain.CryptoPrice, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-ticker")
	defer span.End()

	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", p.spotURL, pair(symbol))
	body, err := p.doRequest(ctx, url)
	if err != nil {
		return domain.CryptoPrice{}, fmt.Errorf("fetch ticker for %s: %w", symbol, err)
	}

	var raw struct {
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.CryptoPrice{}, fmt.Errorf("parse ticker for %s: %w", symbol, err)
	}

	lastUSD, err := strconv.ParseFloat(raw.LastPrice, 64)
	if err != nil {
		return domain.CryptoPrice{}, fmt.Errorf("parse ticker price for %s: %w", symbol, err)
	}
	change, _ := strconv.ParseFloat(raw.PriceChangePercent, 64)
	high, _ := strconv.ParseFloat(raw.HighPrice, 64)
	low, _ := strconv.ParseFloat(raw.LowPrice, 64)
	volume, _ := strconv.ParseFloat(raw.Volume, 64)

	rate := p.rates.USDToEUR(ctx)

	return domain.CryptoPrice{
		Symbol:    symbol,
		PriceUSD:  lastUSD,
		PriceEUR:  lastUSD * rate,
		Change24h: change,
		High24h:   high * rate,
		Low24h:    low * rate,
		Volume24h: volume,
		Timestamp: time.Now().UTC(),
	}, nil
}

// FetchHistory fetches kline history for a symbol. Prices are converted
// to EUR so indicator math and alert thresholds share one currency.
func (p *BinanceProvider) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]domain.HistoryPoint, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-history")
	defer span.End()

	if limit > 1000 {
		limit = 1000
	}
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		p.spotURL, pair(symbol), interval, limit)
	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}

	// Klines are heterogeneous arrays:
	// [openTime, "open", "high", "low", "close", "volume", closeTime, ...]
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines for %s: %w", symbol, err)
	}

	rate := p.rates.USDToEUR(ctx)

	points := make([]domain.HistoryPoint, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openMs, ok := asFloat(k[0])
		if !ok {
			continue
		}
		high, _ := asFloat(k[2])
		low, _ := asFloat(k[3])
		closePrice, ok := asFloat(k[4])
		if !ok {
			continue
		}
		volume, _ := asFloat(k[5])

		points = append(points, domain.HistoryPoint{
			Symbol:    symbol,
			Price:     closePrice * rate,
			High:      high * rate,
			Low:       low * rate,
			Volume:    volume,
			Timestamp: time.UnixMilli(int64(openMs)).UTC(),
		})
	}
	return points, nil
}

// FetchFundingRate returns the latest futures funding rate as a
// percentage. ok is false when the pair has no futures market.
func (p *BinanceProvider) FetchFundingRate(ctx context.Context, symbol string) (rate float64, ok bool, err error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-funding-rate")
	defer span.End()

	url := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%s&limit=1", p.futuresURL, pair(symbol))
	body, err := p.doRequest(ctx, url)
	if err != nil {
		return 0, false, fmt.Errorf("fetch funding rate for %s: %w", symbol, err)
	}

	var rows []struct {
		FundingRate string `json:"fundingRate"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, false, fmt.Errorf("parse funding rate for %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	parsed, err := strconv.ParseFloat(rows[len(rows)-1].FundingRate, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse funding rate value for %s: %w", symbol, err)
	}
	return parsed * 100, true, nil
}

// FetchOpenInterest returns the current futures open interest in
// contracts, or 0 when unavailable.
func (p *BinanceProvider) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-open-interest")
	defer span.End()

	url := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", p.futuresURL, pair(symbol))
	body, err := p.doRequest(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("fetch open interest for %s: %w", symbol, err)
	}

	var raw struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("parse open interest for %s: %w", symbol, err)
	}
	parsed, _ := strconv.ParseFloat(raw.OpenInterest, 64)
	return parsed, nil
}

// doRequest performs a rate-limited GET with retries on transient
// failures (network errors, 429, 5xx).
func (p *BinanceProvider) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	retry := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retry.Duration()):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}
		lastErr = fmt.Errorf("binance API error %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
