package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"coinsentry/internal/cache"
	"coinsentry/internal/domain"
	"coinsentry/internal/provider"
	"coinsentry/internal/ta"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	snapshotTTL     = 90 * time.Second
	historyInterval = "1m"
	weeklyInterval  = "1h"
	weeklyWindow    = 7 * 24 * time.Hour
)

// MarketProvider is what the market service needs from the exchange.
type MarketProvider interface {
	FetchTicker(ctx context.Context, symbol string) (domain.CryptoPrice, error)
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]domain.HistoryPoint, error)
	FetchFundingRate(ctx context.Context, symbol string) (float64, bool, error)
	FetchOpenInterest(ctx context.Context, symbol string) (float64, error)
}

// SentimentProvider supplies the Fear & Greed index.
type SentimentProvider interface {
	FetchLatest(ctx context.Context) (*provider.FearGreedPoint, error)
}

// PriceStore is the optional Postgres history behind the service.
type PriceStore interface {
	UpsertHistory(ctx context.Context, symbol string, points []domain.HistoryPoint, usdRate float64) error
	RecentHistory(ctx context.Context, symbol string, since time.Time) ([]domain.HistoryPoint, error)
}

// MarketService assembles full market snapshots per symbol. Snapshots
// are memoized for a short TTL and mirrored into Redis when available,
// so the TUI, the status API, and the poller share one fetch.
type MarketService struct {
	tracer    trace.Tracer
	market    MarketProvider
	sentiment SentimentProvider
	rates     provider.EURConverter
	store     PriceStore
	snapshots *cache.MarketCache

	mu   sync.Mutex
	memo map[string]memoEntry

	nowFunc func() time.Time
}

type memoEntry struct {
	data *domain.MarketData
	at   time.Time
}

func NewMarketService(
	tracer trace.Tracer,
	market MarketProvider,
	sentiment SentimentProvider,
	rates provider.EURConverter,
	store PriceStore,
	snapshots *cache.MarketCache,
) *MarketService {
	return &MarketService{
		tracer:    tracer,
		market:    market,
		sentiment: sentiment,
		rates:     rates,
		store:     store,
		snapshots: snapshots,
		memo:      make(map[string]memoEntry),
		nowFunc:   time.Now,
	}
}

// Snapshot returns current market data for a symbol, fetching from the
// exchange on cache miss. Sentiment, funding, and open interest are
// best-effort: their failure degrades the snapshot instead of failing it.
func (s *MarketService) Snapshot(ctx context.Context, symbol string) (*domain.MarketData, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.snapshot")
	defer span.End()

	if md, ok := s.cachedSnapshot(ctx, symbol); ok {
		return md, nil
	}

	price, err := s.market.FetchTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("ticker %s: %w", symbol, err)
	}

	md := &domain.MarketData{Symbol: symbol, CurrentPrice: price}

	history, err := s.market.FetchHistory(ctx, symbol, historyInterval, domain.MaxHistoryPoints)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("history fetch failed, indicators degraded")
	} else {
		md.History = history
	}
	md.Indicators = ta.Compute(md.History)

	if fg, err := s.sentiment.FetchLatest(ctx); err != nil {
		log.Debug().Err(err).Msg("fear & greed fetch failed")
	} else if fg != nil {
		md.FearGreed = fg.Value
	}

	if rate, ok, err := s.market.FetchFundingRate(ctx, symbol); err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("funding rate fetch failed")
	} else if ok {
		md.FundingRate = rate
		md.HasFunding = true
	}
	if oi, err := s.market.FetchOpenInterest(ctx, symbol); err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("open interest fetch failed")
	} else {
		md.OpenInterest = oi
	}

	s.remember(symbol, md)
	s.persist(ctx, md)
	return md, nil
}

// WeeklyExtremes returns the 7-day low/high/average for a symbol, from
// hourly klines, falling back to persisted history when the exchange is
// unreachable.
func (s *MarketService) WeeklyExtremes(ctx context.Context, symbol string) (domain.Extremes, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.weekly-extremes")
	defer span.End()

	points, err := s.market.FetchHistory(ctx, symbol, weeklyInterval, int(weeklyWindow/time.Hour))
	if err != nil && s.store != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("weekly history fetch failed, using stored history")
		points, err = s.store.RecentHistory(ctx, symbol, s.nowFunc().Add(-weeklyWindow))
	}
	if err != nil {
		return domain.Extremes{}, fmt.Errorf("weekly history %s: %w", symbol, err)
	}
	return computeExtremes(points), nil
}

// Forget drops the memoized snapshot so the next call refetches.
func (s *MarketService) Forget(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memo, symbol)
}

func (s *MarketService) cachedSnapshot(ctx context.Context, symbol string) (*domain.MarketData, bool) {
	now := s.nowFunc()

	s.mu.Lock()
	entry, ok := s.memo[symbol]
	s.mu.Unlock()
	if ok && now.Sub(entry.at) < snapshotTTL {
		return entry.data, true
	}

	if s.snapshots.Enabled() {
		if data, ok := s.snapshots.Get(ctx, symbol); ok {
			var md domain.MarketData
			if err := json.Unmarshal(data, &md); err == nil &&
				now.Sub(md.CurrentPrice.Timestamp) < snapshotTTL {
				s.remember(symbol, &md)
				return &md, true
			}
		}
	}
	return nil, false
}

func (s *MarketService) remember(symbol string, md *domain.MarketData) {
	s.mu.Lock()
	s.memo[symbol] = memoEntry{data: md, at: s.nowFunc()}
	s.mu.Unlock()
}

func (s *MarketService) persist(ctx context.Context, md *domain.MarketData) {
	if s.store != nil && len(md.History) > 0 {
		rate := 0.0
		if s.rates != nil {
			rate = s.rates.USDToEUR(ctx)
		}
		if err := s.store.UpsertHistory(ctx, md.Symbol, md.History, rate); err != nil {
			log.Warn().Err(err).Str("symbol", md.Symbol).Msg("failed to persist price history")
		}
	}

	if s.snapshots.Enabled() {
		if data, err := json.Marshal(md); err == nil {
			s.snapshots.Put(ctx, md.Symbol, data)
		}
	}
}

func computeExtremes(points []domain.HistoryPoint) domain.Extremes {
	if len(points) == 0 {
		return domain.Extremes{}
	}

	prices := make([]float64, 0, len(points))
	for _, p := range points {
		prices = append(prices, p.Price)
	}
	sort.Float64s(prices)

	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	return domain.Extremes{
		Min: prices[0],
		Max: prices[len(prices)-1],
		Avg: sum / float64(len(prices)),
	}
}
