package repository

import (
	"context"
	"time"

	"coinsentry/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS alert_log (
    id       BIGSERIAL   PRIMARY KEY,
    symbol   TEXT        NOT NULL,
    type     TEXT        NOT NULL,
    level    TEXT        NOT NULL,
    message  TEXT        NOT NULL,
    price    NUMERIC     NOT NULL,
    ts       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_log_ts ON alert_log (ts DESC);
`

// AlertRepository keeps the alert history behind /status and the daily
// summary counters.
type AlertRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAlertRepository(pool PgxPool, tracer trace.Tracer) *AlertRepository {
	return &AlertRepository{pool: pool, tracer: tracer}
}

func (r *AlertRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "alert-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createAlertsTable)
	return err
}

func (r *AlertRepository) Insert(ctx context.Context, alert domain.Alert) error {
	_, span := r.tracer.Start(ctx, "alert-repo.insert")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO alert_log (symbol, type, level, message, price, ts)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		alert.Symbol, string(alert.Type), alert.Level.String(), alert.Message, alert.Price, alert.Timestamp,
	)
	return err
}

func (r *AlertRepository) Recent(ctx context.Context, limit int) ([]domain.Alert, error) {
	_, span := r.tracer.Start(ctx, "alert-repo.recent")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, type, level, message, price, ts
		 FROM alert_log
		 ORDER BY ts DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var typ, level string
		var ts time.Time
		if err := rows.Scan(&a.Symbol, &typ, &level, &a.Message, &a.Price, &ts); err != nil {
			return nil, err
		}
		a.Type = domain.AlertType(typ)
		a.Level = parseAlertLevel(level)
		a.Timestamp = ts.UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *AlertRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	_, span := r.tracer.Start(ctx, "alert-repo.count-since")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT COUNT(*) FROM alert_log WHERE ts >= $1`, since)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

func (r *AlertRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "alert-repo.prune-before")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM alert_log WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func parseAlertLevel(s string) domain.AlertLevel {
	switch s {
	case "warning":
		return domain.LevelWarning
	case "important":
		return domain.LevelImportant
	case "critical":
		return domain.LevelCritical
	default:
		return domain.LevelInfo
	}
}
