// Package handler is the HTTP status API served in daemon mode.
package handler

import (
	"context"
	"time"

	"coinsentry/internal/domain"
	"coinsentry/internal/job"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// AlertLog is the persisted alert history behind /api/alerts. Nil when
// Postgres is not configured.
type AlertLog interface {
	Recent(ctx context.Context, limit int) ([]domain.Alert, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type Handler struct {
	tracer trace.Tracer
	daemon *job.Daemon
	alerts AlertLog
}

func New(tracer trace.Tracer, daemon *job.Daemon, alerts AlertLog) *Handler {
	return &Handler{tracer: tracer, daemon: daemon, alerts: alerts}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.GET("/status", h.Status)
	api.GET("/prices", h.Prices)
	api.GET("/market/:symbol", h.Market)
	api.GET("/alerts", h.Alerts)
}
