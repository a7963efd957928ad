package repository

import (
	"context"
	"time"

	"coinsentry/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createPricesTable = `
CREATE TABLE IF NOT EXISTS price_history (
    symbol      TEXT        NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    price_eur   NUMERIC     NOT NULL,
    price_usd   NUMERIC     NOT NULL,
    high        NUMERIC     NOT NULL,
    low         NUMERIC     NOT NULL,
    volume      NUMERIC     NOT NULL,
    PRIMARY KEY (symbol, ts)
);

CREATE INDEX IF NOT EXISTS idx_price_history_symbol_ts
    ON price_history (symbol, ts DESC);
`

// PgxPool is the subset of pgxpool.Pool the repositories use, kept
// small so tests can fake it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PriceRepository persists sampled prices so restarts keep their
// history and weekly ranges survive without refetching.
type PriceRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPriceRepository(pool PgxPool, tracer trace.Tracer) *PriceRepository {
	return &PriceRepository{pool: pool, tracer: tracer}
}

func (r *PriceRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "price-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createPricesTable)
	return err
}

func (r *PriceRepository) UpsertHistory(ctx context.Context, symbol string, points []domain.HistoryPoint, usdRate float64) error {
	if len(points) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "price-repo.upsert-history")
	defer span.End()

	batch := &pgx.Batch{}
	for _, p := range points {
		usd := p.Price
		if usdRate > 0 {
			usd = p.Price / usdRate
		}
		batch.Queue(
			`INSERT INTO price_history (symbol, ts, price_eur, price_usd, high, low, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (symbol, ts) DO UPDATE SET
			     price_eur = EXCLUDED.price_eur,
			     price_usd = EXCLUDED.price_usd,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     volume = EXCLUDED.volume`,
			symbol, p.Timestamp, p.Price, usd, p.High, p.Low, p.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *PriceRepository) RecentHistory(ctx context.Context, symbol string, since time.Time) ([]domain.HistoryPoint, error) {
	_, span := r.tracer.Start(ctx, "price-repo.recent-history")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT ts, price_eur, high, low, volume
		 FROM price_history
		 WHERE symbol = $1 AND ts >= $2
		 ORDER BY ts ASC`,
		symbol, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.HistoryPoint
	for rows.Next() {
		p := domain.HistoryPoint{Symbol: symbol}
		var ts time.Time
		if err := rows.Scan(&ts, &p.Price, &p.High, &p.Low, &p.Volume); err != nil {
			return nil, err
		}
		p.Timestamp = ts.UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// PruneBefore drops rows older than cutoff and returns how many went.
func (r *PriceRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	_, span := r.tracer.Start(ctx, "price-repo.prune-before")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM price_history WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
