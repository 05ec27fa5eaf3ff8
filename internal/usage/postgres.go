package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	// Postgres driver.
	_ "github.com/lib/pq"

	"github.com/davidbz/tonepipe/internal/domain"
)

// PostgresStore persists monthly usage records in Postgres. The upsert
// increments counters inside the database, so concurrent Add calls for
// the same (user, period) are serialized by the row lock and never lose
// updates.
//
// Expected schema:
//
//	CREATE TABLE monthly_usage (
//	    user_id       TEXT           NOT NULL,
//	    period        TEXT           NOT NULL,
//	    rewrite_count INTEGER        NOT NULL DEFAULT 0,
//	    token_count   BIGINT         NOT NULL DEFAULT 0,
//	    cost_usd      NUMERIC(12, 6) NOT NULL DEFAULT 0,
//	    PRIMARY KEY (user_id, period)
//	);
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Get returns the record for a (user, period).
func (s *PostgresStore) Get(ctx context.Context, userID, period string) (*Record, error) {
	query := `
		SELECT user_id, period, rewrite_count, token_count, cost_usd
		FROM monthly_usage
		WHERE user_id = $1 AND period = $2
	`

	var record Record
	if err := s.db.GetContext(ctx, &record, query, userID, period); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUsageNotFound
		}
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}

	return &record, nil
}

// Add increments the record for a (user, period), creating it when
// absent.
func (s *PostgresStore) Add(ctx context.Context, userID, period string, delta Delta) error {
	query := `
		INSERT INTO monthly_usage (user_id, period, rewrite_count, token_count, cost_usd)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, period)
		DO UPDATE SET
			rewrite_count = monthly_usage.rewrite_count + EXCLUDED.rewrite_count,
			token_count   = monthly_usage.token_count + EXCLUDED.token_count,
			cost_usd      = monthly_usage.cost_usd + EXCLUDED.cost_usd
	`

	if _, err := s.db.ExecContext(ctx, query, userID, period, delta.Rewrites, delta.Tokens, delta.CostUSD); err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
