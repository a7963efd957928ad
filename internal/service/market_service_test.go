package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"coinsentry/internal/domain"
	"coinsentry/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type mockMarket struct {
	ticker     domain.CryptoPrice
	tickerErr  error
	history    []domain.HistoryPoint
	historyErr error
	funding    float64
	hasFunding bool
	fundingErr error
	oi         float64
	oiErr      error

	tickerCalls  int
	historyCalls int
	lastInterval string
	lastLimit    int
}

func (m *mockMarket) FetchTicker(ctx context.Context, symbol string) (domain.CryptoPrice, error) {
	m.tickerCalls++
	return m.ticker, m.tickerErr
}

func (m *mockMarket) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]domain.HistoryPoint, error) {
	m.historyCalls++
	m.lastInterval = interval
	m.lastLimit = limit
	return m.history, m.historyErr
}

func (m *mockMarket) FetchFundingRate(ctx context.Context, symbol string) (float64, bool, error) {
	return m.funding, m.hasFunding, m.fundingErr
}

func (m *mockMarket) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	return m.oi, m.oiErr
}

type mockSentiment struct {
	point *provider.FearGreedPoint
	err   error
}

func (m *mockSentiment) FetchLatest(ctx context.Context) (*provider.FearGreedPoint, error) {
	return m.point, m.err
}

type mockPriceStore struct {
	stored      []domain.HistoryPoint
	upsertCalls int
	recent      []domain.HistoryPoint
	recentErr   error
}

func (m *mockPriceStore) UpsertHistory(ctx context.Context, symbol string, points []domain.HistoryPoint, usdRate float64) error {
	m.upsertCalls++
	m.stored = points
	return nil
}

func (m *mockPriceStore) RecentHistory(ctx context.Context, symbol string, since time.Time) ([]domain.HistoryPoint, error) {
	return m.recent, m.recentErr
}

type fixedRate float64

func (r fixedRate) USDToEUR(ctx context.Context) float64 { return float64(r) }

func historyPoints(base time.Time, prices ...float64) []domain.HistoryPoint {
	points := make([]domain.HistoryPoint, 0, len(prices))
	for i, p := range prices {
		points = append(points, domain.HistoryPoint{
			Symbol:    "BTC",
			Price:     p,
			High:      p * 1.01,
			Low:       p * 0.99,
			Volume:    100,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return points
}

func TestSnapshotAssemblesMarketData(t *testing.T) {
	now := time.Now().UTC()
	market := &mockMarket{
		ticker:     domain.CryptoPrice{Symbol: "BTC", PriceEUR: 90000, PriceUSD: 100000, Timestamp: now},
		history:    historyPoints(now.Add(-time.Hour), 89000, 89500, 90000),
		funding:    -0.05,
		hasFunding: true,
		oi:         12345,
	}
	sentiment := &mockSentiment{point: &provider.FearGreedPoint{Value: 22}}
	store := &mockPriceStore{}

	svc := NewMarketService(testTracer, market, sentiment, fixedRate(0.9), store, nil)

	md, err := svc.Snapshot(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.CurrentPrice.PriceEUR != 90000 {
		t.Fatalf("unexpected price: %+v", md.CurrentPrice)
	}
	if md.FearGreed != 22 {
		t.Fatalf("expected fear & greed 22, got %d", md.FearGreed)
	}
	if !md.HasFunding || md.FundingRate != -0.05 {
		t.Fatalf("unexpected funding: %+v", md)
	}
	if md.OpenInterest != 12345 {
		t.Fatalf("unexpected open interest: %f", md.OpenInterest)
	}
	if len(md.History) != 3 {
		t.Fatalf("expected 3 history points, got %d", len(md.History))
	}
	if market.lastInterval != historyInterval || market.lastLimit != domain.MaxHistoryPoints {
		t.Fatalf("unexpected history args: %s %d", market.lastInterval, market.lastLimit)
	}
	if store.upsertCalls != 1 {
		t.Fatalf("expected history to be persisted, got %d calls", store.upsertCalls)
	}
}

func TestSnapshotMemoized(t *testing.T) {
	now := time.Now().UTC()
	market := &mockMarket{
		ticker: domain.CryptoPrice{Symbol: "BTC", PriceEUR: 90000, Timestamp: now},
	}
	svc := NewMarketService(testTracer, market, &mockSentiment{}, fixedRate(0.9), nil, nil)

	clock := now
	svc.nowFunc = func() time.Time { return clock }

	if _, err := svc.Snapshot(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Snapshot(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if market.tickerCalls != 1 {
		t.Fatalf("second snapshot should hit the memo, got %d fetches", market.tickerCalls)
	}

	clock = clock.Add(snapshotTTL + time.Second)
	if _, err := svc.Snapshot(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if market.tickerCalls != 2 {
		t.Fatalf("expired memo should refetch, got %d fetches", market.tickerCalls)
	}
}

func TestForgetInvalidatesMemo(t *testing.T) {
	now := time.Now().UTC()
	market := &mockMarket{
		ticker: domain.CryptoPrice{Symbol: "BTC", PriceEUR: 90000, Timestamp: now},
	}
	svc := NewMarketService(testTracer, market, &mockSentiment{}, fixedRate(0.9), nil, nil)

	if _, err := svc.Snapshot(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Forget("BTC")
	if _, err := svc.Snapshot(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if market.tickerCalls != 2 {
		t.Fatalf("forget should force a refetch, got %d fetches", market.tickerCalls)
	}
}

func TestSnapshotDegradesOnOptionalFailures(t *testing.T) {
	now := time.Now().UTC()
	market := &mockMarket{
		ticker:     domain.CryptoPrice{Symbol: "BTC", PriceEUR: 90000, Timestamp: now},
		historyErr: errors.New("klines down"),
		fundingErr: errors.New("futures down"),
		oiErr:      errors.New("futures down"),
	}
	sentiment := &mockSentiment{err: errors.New("fgi down")}

	svc := NewMarketService(testTracer, market, sentiment, fixedRate(0.9), nil, nil)

	md, err := svc.Snapshot(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("optional failures should not fail the snapshot: %v", err)
	}
	if md.FearGreed != 0 || md.HasFunding {
		t.Fatalf("expected degraded snapshot, got %+v", md)
	}
	if md.Indicators.RSI != 50 {
		t.Fatalf("no history should yield neutral RSI, got %f", md.Indicators.RSI)
	}
}

func TestSnapshotFailsWithoutTicker(t *testing.T) {
	market := &mockMarket{tickerErr: errors.New("binance down")}
	svc := NewMarketService(testTracer, market, &mockSentiment{}, fixedRate(0.9), nil, nil)

	if _, err := svc.Snapshot(context.Background(), "BTC"); err == nil {
		t.Fatal("ticker failure must fail the snapshot")
	}
}

func TestWeeklyExtremes(t *testing.T) {
	now := time.Now().UTC()
	market := &mockMarket{history: historyPoints(now.Add(-3*time.Hour), 100, 80, 120)}
	svc := NewMarketService(testTracer, market, &mockSentiment{}, fixedRate(0.9), nil, nil)

	ext, err := svc.WeeklyExtremes(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ext.Min != 80 || ext.Max != 120 || ext.Avg != 100 {
		t.Fatalf("unexpected extremes: %+v", ext)
	}
	if market.lastInterval != weeklyInterval || market.lastLimit != 168 {
		t.Fatalf("unexpected weekly fetch args: %s %d", market.lastInterval, market.lastLimit)
	}
}

func TestWeeklyExtremesFallsBackToStore(t *testing.T) {
	now := time.Now().UTC()
	market := &mockMarket{historyErr: errors.New("binance down")}
	store := &mockPriceStore{recent: historyPoints(now.Add(-time.Hour), 10, 30)}

	svc := NewMarketService(testTracer, market, &mockSentiment{}, fixedRate(0.9), store, nil)

	ext, err := svc.WeeklyExtremes(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ext.Min != 10 || ext.Max != 30 {
		t.Fatalf("expected stored history extremes, got %+v", ext)
	}
}

func TestComputeExtremesEmpty(t *testing.T) {
	if ext := computeExtremes(nil); ext.Min != 0 || ext.Max != 0 || ext.Avg != 0 {
		t.Fatalf("empty history should yield zero extremes, got %+v", ext)
	}
}
