package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polkiloo/shiftclose/internal/domain/repository"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

var _ repository.Factory = (*Storage)(nil)

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool   pgxPool
	logger *slog.Logger
}

// New creates storage with schema initialization.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	storage := &Storage{pool: pool, logger: logger}
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Storage) Drafts() repository.DraftRepository {
	return &draftRepository{storage: s}
}

func (s *Storage) Lottery() repository.LotteryRepository {
	return &lotteryRepository{storage: s}
}

func (s *Storage) Inventory() repository.PackInventory {
	return &packInventory{storage: s}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS closing_drafts (
            id TEXT PRIMARY KEY,
            store_id TEXT NOT NULL,
            scope_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            status TEXT NOT NULL,
            step_marker TEXT NOT NULL DEFAULT '',
            payload JSONB NOT NULL DEFAULT '{}'::jsonb,
            version BIGINT NOT NULL DEFAULT 1,
            settlement_id TEXT,
            created_by TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS lottery_packs (
            store_id TEXT NOT NULL,
            pack_id TEXT NOT NULL,
            game TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            ticket_count INTEGER NOT NULL,
            current_serial INTEGER NOT NULL DEFAULT 0,
            ticket_price NUMERIC(12,2) NOT NULL,
            PRIMARY KEY (store_id, pack_id)
        )`,
	`CREATE TABLE IF NOT EXISTS lottery_business_days (
            id BIGSERIAL PRIMARY KEY,
            store_id TEXT NOT NULL,
            business_date DATE NOT NULL,
            status TEXT NOT NULL,
            opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            closed_at TIMESTAMPTZ,
            UNIQUE (store_id, business_date)
        )`,
	`CREATE TABLE IF NOT EXISTS lottery_closing_attempts (
            id BIGSERIAL PRIMARY KEY,
            day_id BIGINT NOT NULL REFERENCES lottery_business_days(id),
            store_id TEXT NOT NULL,
            phase TEXT NOT NULL,
            lines JSONB NOT NULL,
            tickets_sold BIGINT NOT NULL,
            lottery_total NUMERIC(14,2) NOT NULL,
            prepared_by TEXT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL,
            closings_created INTEGER NOT NULL DEFAULT 0,
            next_day_id BIGINT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS lottery_pack_closings (
            id BIGSERIAL PRIMARY KEY,
            attempt_id BIGINT NOT NULL REFERENCES lottery_closing_attempts(id),
            day_id BIGINT NOT NULL REFERENCES lottery_business_days(id),
            store_id TEXT NOT NULL,
            pack_id TEXT NOT NULL,
            starting_serial TEXT NOT NULL,
            ending_serial TEXT NOT NULL,
            tickets_sold BIGINT NOT NULL,
            unit_price NUMERIC(12,2) NOT NULL,
            sales_amount NUMERIC(14,2) NOT NULL,
            outcome TEXT NOT NULL,
            closed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (day_id, pack_id)
        )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_closing_drafts_active_scope ON closing_drafts(store_id, scope_id) WHERE status IN ('IN_PROGRESS', 'FINALIZING')`,
	`CREATE INDEX IF NOT EXISTS idx_closing_drafts_finalizing ON closing_drafts(updated_at) WHERE status = 'FINALIZING'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_lottery_days_open ON lottery_business_days(store_id) WHERE status = 'OPEN'`,
	`CREATE INDEX IF NOT EXISTS idx_lottery_attempts_day ON lottery_closing_attempts(day_id, id DESC)`,
}

func (s *Storage) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
