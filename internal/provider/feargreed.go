package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const fearGreedBaseURL = "https://api.alternative.me"

// FearGreedPoint is one reading of the alternative.me crypto Fear & Greed
// index (0 = extreme fear, 100 = extreme greed).
type FearGreedPoint struct {
	Value          int
	Classification string
	Timestamp      time.Time
}

type FearGreedProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer

	mu       sync.Mutex
	cached   *FearGreedPoint
	cachedAt time.Time
	ttl      time.Duration
}

func NewFearGreedProvider(tracer trace.Tracer) *FearGreedProvider {
	return &FearGreedProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: fearGreedBaseURL,
		tracer:  tracer,
		ttl:     30 * time.Minute,
	}
}

// FetchLatest returns the current index value. The index updates daily,
// so readings are cached for a while to spare the API. A stale reading is
// returned when a refresh fails.
func (p *FearGreedProvider) FetchLatest(ctx context.Context) (*FearGreedPoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.cachedAt) < p.ttl {
		return p.cached, nil
	}

	point, err := p.fetch(ctx)
	if err != nil {
		if p.cached != nil {
			return p.cached, nil
		}
		return nil, err
	}
	p.cached = point
	p.cachedAt = time.Now()
	return point, nil
}

func (p *FearGreedProvider) fetch(ctx context.Context) (*FearGreedPoint, error) {
	_, span := p.tracer.Start(ctx, "feargreed.fetch-latest")
	defer span.End()

	url := strings.TrimRight(p.baseURL, "/") + "/fng/?limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fear & greed API error %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
			Timestamp      string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode fear & greed response: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("fear & greed response has no rows")
	}

	row := payload.Data[0]
	value, err := strconv.Atoi(strings.TrimSpace(row.Value))
	if err != nil {
		return nil, fmt.Errorf("parse fear & greed value: %w", err)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(row.Timestamp), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse fear & greed timestamp: %w", err)
	}
	if ts > 1_000_000_000_000 {
		ts = ts / 1000
	}

	return &FearGreedPoint{
		Value:          value,
		Classification: row.Classification,
		Timestamp:      time.Unix(ts, 0).UTC(),
	}, nil
}
