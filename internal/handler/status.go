package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Status returns the daemon's lifetime counters, the next summary time,
// and the persisted alert count for the last 24h when available.
func (h *Handler) Status(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.status")
	defer span.End()

	body := gin.H{
		"stats":  h.daemon.Stats(),
		"status": h.daemon.StatusLine(),
	}
	if next := h.daemon.NextSummary(); !next.IsZero() {
		body["next_summary"] = next
	}
	if h.alerts != nil {
		if count, err := h.alerts.CountSince(ctx, time.Now().Add(-24*time.Hour)); err != nil {
			log.Warn().Err(err).Msg("alert count query failed")
		} else {
			body["alerts_24h"] = count
		}
	}
	c.JSON(http.StatusOK, body)
}

// Alerts returns the most recent persisted alerts, newest first.
func (h *Handler) Alerts(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.alerts")
	defer span.End()

	if h.alerts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert history requires a database"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}

	alerts, err := h.alerts.Recent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// Prices returns the latest price per watched symbol.
func (h *Handler) Prices(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.prices")
	defer span.End()

	results := h.daemon.Results()
	prices := make(map[string]any, len(results))
	for symbol, r := range results {
		prices[symbol] = r.Data.CurrentPrice
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

// Market returns the full latest analysis for one symbol.
func (h *Handler) Market(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.market")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	result, ok := h.daemon.Results()[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for symbol: " + symbol})
		return
	}
	c.JSON(http.StatusOK, result)
}
