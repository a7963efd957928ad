package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// fallbackEURRate is used until a live rate has been fetched.
const fallbackEURRate = 0.92

var exchangeRateURLs = []string{
	"https://api.exchangerate-api.com/v4/latest/USD",
	"https://open.er-api.com/v6/latest/USD",
}

// ExchangeRateProvider resolves the USD to EUR conversion rate from free
// rate APIs, trying each endpoint in order. The rate moves slowly, so it
// is cached for an hour; on total failure the last known rate is kept.
type ExchangeRateProvider struct {
	client *http.Client
	urls   []string
	tracer trace.Tracer

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
	ttl       time.Duration
}

func NewExchangeRateProvider(tracer trace.Tracer) *ExchangeRateProvider {
	return &ExchangeRateProvider{
		client: &http.Client{Timeout: 5 * time.Second},
		urls:   exchangeRateURLs,
		tracer: tracer,
		rate:   fallbackEURRate,
		ttl:    time.Hour,
	}
}

// USDToEUR returns the cached rate, refreshing it when stale. Never
// fails: conversion falls back to the last known rate.
func (p *ExchangeRateProvider) USDToEUR(ctx context.Context) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.fetchedAt.IsZero() && time.Since(p.fetchedAt) < p.ttl {
		return p.rate
	}

	_, span := p.tracer.Start(ctx, "exchangerate.usd-to-eur")
	defer span.End()

	for _, url := range p.urls {
		rate, err := p.fetchRate(ctx, url)
		if err != nil {
			log.Debug().Err(err).Str("url", url).Msg("exchange rate fetch failed")
			continue
		}
		p.rate = rate
		p.fetchedAt = time.Now()
		return p.rate
	}

	log.Warn().Float64("rate", p.rate).Msg("all exchange rate APIs failed, keeping last known rate")
	p.fetchedAt = time.Now() // back off for a full TTL before retrying
	return p.rate
}

func (p *ExchangeRateProvider) fetchRate(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, &rateAPIError{status: resp.StatusCode}
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	rate, ok := payload.Rates["EUR"]
	if !ok || rate <= 0 {
		return 0, &rateAPIError{status: resp.StatusCode}
	}
	return rate, nil
}

type rateAPIError struct{ status int }

func (e *rateAPIError) Error() string {
	return "exchange rate API returned no usable EUR rate (status " + http.StatusText(e.status) + ")"
}
