package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
)

type lotteryRepository struct {
	storage *Storage
}

const attemptColumns = `id, day_id, store_id, phase, lines, tickets_sold, lottery_total::text, prepared_by,
                        expires_at, closings_created, COALESCE(next_day_id, 0), created_at`

func scanAttempt(row pgx.Row) (*model.LotteryClosingAttempt, error) {
	var (
		a     model.LotteryClosingAttempt
		lines []byte
		total string
	)
	err := row.Scan(&a.ID, &a.DayID, &a.StoreID, &a.Phase, &lines, &a.TicketsSold, &total, &a.PreparedBy,
		&a.ExpiresAt, &a.ClosingsCreated, &a.NextDayID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	if a.LotteryTotal, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode lottery total: %w", err)
	}
	if err := json.Unmarshal(lines, &a.Lines); err != nil {
		return nil, fmt.Errorf("decode prepared lines: %w", err)
	}
	return &a, nil
}

func scanDay(row pgx.Row) (*model.LotteryDay, error) {
	var d model.LotteryDay
	if err := row.Scan(&d.ID, &d.StoreID, &d.BusinessDate, &d.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *lotteryRepository) OpenDay(ctx context.Context, storeID string, today time.Time) (*model.LotteryDay, error) {
	const selectOpen = `SELECT id, store_id, business_date, status FROM lottery_business_days
                        WHERE store_id=$1 AND status='OPEN'`
	const insertOpen = `INSERT INTO lottery_business_days (store_id, business_date, status)
                        VALUES ($1, $2, 'OPEN')
                        RETURNING id, store_id, business_date, status`

	day, err := scanDay(r.storage.pool.QueryRow(ctx, selectOpen, storeID))
	if err == nil || !errors.Is(err, domainErrors.ErrNotFound) {
		return day, err
	}

	day, err = scanDay(r.storage.pool.QueryRow(ctx, insertOpen, storeID, today))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return scanDay(r.storage.pool.QueryRow(ctx, selectOpen, storeID))
		}
		return nil, err
	}
	r.storage.logger.Info("lottery day opened", slog.String("store_id", storeID), slog.Int64("day_id", day.ID))
	return day, nil
}

func lockDay(ctx context.Context, tx pgx.Tx, storeID string, dayID int64) (*model.LotteryDay, error) {
	const query = `SELECT id, store_id, business_date, status FROM lottery_business_days
                   WHERE id=$1 AND store_id=$2 FOR UPDATE`
	return scanDay(tx.QueryRow(ctx, query, dayID, storeID))
}

func lockLatestAttempt(ctx context.Context, tx pgx.Tx, storeID string, dayID int64) (*model.LotteryClosingAttempt, error) {
	const query = `SELECT ` + attemptColumns + ` FROM lottery_closing_attempts
                   WHERE day_id=$1 AND store_id=$2
                   ORDER BY id DESC
                   LIMIT 1
                   FOR UPDATE`
	return scanAttempt(tx.QueryRow(ctx, query, dayID, storeID))
}

func setPhase(ctx context.Context, tx pgx.Tx, attemptID int64, phase model.LotteryPhase) error {
	_, err := tx.Exec(ctx, `UPDATE lottery_closing_attempts SET phase=$1, updated_at=NOW() WHERE id=$2`, phase, attemptID)
	return err
}

func (r *lotteryRepository) SavePrepared(ctx context.Context, attempt *model.LotteryClosingAttempt) (*model.LotteryClosingAttempt, error) {
	lines, err := json.Marshal(attempt.Lines)
	if err != nil {
		return nil, fmt.Errorf("encode prepared lines: %w", err)
	}

	saved := *attempt
	saved.Phase = model.LotteryPhasePrepared
	err = r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		day, err := lockDay(ctx, tx, attempt.StoreID, attempt.DayID)
		if err != nil {
			return err
		}
		if day.Status != model.LotteryDayOpen {
			return fmt.Errorf("lottery day %d is %s: %w", day.ID, day.Status, domainErrors.ErrConflict)
		}

		const supersede = `UPDATE lottery_closing_attempts SET phase='CANCELLED', updated_at=NOW()
                           WHERE day_id=$1 AND phase='PREPARED'`
		if _, err := tx.Exec(ctx, supersede, attempt.DayID); err != nil {
			return err
		}

		const insert = `INSERT INTO lottery_closing_attempts
                        (day_id, store_id, phase, lines, tickets_sold, lottery_total, prepared_by, expires_at)
                        VALUES ($1, $2, $3, $4::jsonb, $5, $6::numeric, $7, $8)
                        RETURNING id, created_at`
		return tx.QueryRow(ctx, insert, attempt.DayID, attempt.StoreID, model.LotteryPhasePrepared, string(lines),
			attempt.TicketsSold, attempt.LotteryTotal.String(), attempt.PreparedBy, attempt.ExpiresAt,
		).Scan(&saved.ID, &saved.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *lotteryRepository) LatestAttempt(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryClosingAttempt, error) {
	var attempt *model.LotteryClosingAttempt
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		attempt, err = lockLatestAttempt(ctx, tx, storeID, dayID)
		if err != nil {
			return err
		}
		if attempt.Lapsed(now) {
			if err := setPhase(ctx, tx, attempt.ID, model.LotteryPhaseExpired); err != nil {
				return err
			}
			attempt.Phase = model.LotteryPhaseExpired
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *lotteryRepository) Commit(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryCommitResult, error) {
	var (
		result  *model.LotteryCommitResult
		expired bool
	)
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		day, err := lockDay(ctx, tx, storeID, dayID)
		if err != nil {
			return err
		}
		attempt, err := lockLatestAttempt(ctx, tx, storeID, dayID)
		if err != nil {
			return err
		}

		switch attempt.Phase {
		case model.LotteryPhaseCommitted:
			result = attempt.CommitResult()
			return nil
		case model.LotteryPhaseCancelled:
			return fmt.Errorf("lottery attempt %d was cancelled: %w", attempt.ID, domainErrors.ErrConflict)
		case model.LotteryPhaseExpired:
			expired = true
			return nil
		}

		if attempt.Lapsed(now) {
			expired = true
			return setPhase(ctx, tx, attempt.ID, model.LotteryPhaseExpired)
		}
		if day.Status != model.LotteryDayOpen {
			return fmt.Errorf("lottery day %d is %s: %w", day.ID, day.Status, domainErrors.ErrConflict)
		}

		const insertClosing = `INSERT INTO lottery_pack_closings
                               (attempt_id, day_id, store_id, pack_id, starting_serial, ending_serial, tickets_sold, unit_price, sales_amount, outcome)
                               VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10)`
		for _, line := range attempt.Lines {
			if _, err := tx.Exec(ctx, insertClosing, attempt.ID, dayID, storeID, line.PackID, line.StartingSerial,
				line.EndingSerial, line.TicketsSold, line.UnitPrice.String(), line.SalesAmount.String(), line.Outcome); err != nil {
				return err
			}
		}

		const closeDay = `UPDATE lottery_business_days SET status='CLOSED', closed_at=NOW() WHERE id=$1`
		if _, err := tx.Exec(ctx, closeDay, dayID); err != nil {
			return err
		}

		const openNext = `INSERT INTO lottery_business_days (store_id, business_date, status)
                          VALUES ($1, $2, 'OPEN')
                          RETURNING id`
		var nextDayID int64
		if err := tx.QueryRow(ctx, openNext, storeID, day.BusinessDate.AddDate(0, 0, 1)).Scan(&nextDayID); err != nil {
			return err
		}

		const markCommitted = `UPDATE lottery_closing_attempts
                               SET phase='COMMITTED', closings_created=$1, next_day_id=$2, updated_at=NOW()
                               WHERE id=$3`
		if _, err := tx.Exec(ctx, markCommitted, len(attempt.Lines), nextDayID, attempt.ID); err != nil {
			return err
		}

		attempt.ClosingsCreated = len(attempt.Lines)
		attempt.NextDayID = nextDayID
		result = attempt.CommitResult()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("lottery prepare for day %d: %w", dayID, domainErrors.ErrExpired)
	}
	return result, nil
}

func (r *lotteryRepository) Cancel(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryClosingAttempt, error) {
	var attempt *model.LotteryClosingAttempt
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		attempt, err = lockLatestAttempt(ctx, tx, storeID, dayID)
		if err != nil {
			return err
		}
		switch attempt.Phase {
		case model.LotteryPhaseCommitted:
			return fmt.Errorf("lottery attempt %d already committed: %w", attempt.ID, domainErrors.ErrConflict)
		case model.LotteryPhaseCancelled, model.LotteryPhaseExpired:
			return nil
		}
		next := model.LotteryPhaseCancelled
		if attempt.Lapsed(now) {
			next = model.LotteryPhaseExpired
		}
		if err := setPhase(ctx, tx, attempt.ID, next); err != nil {
			return err
		}
		attempt.Phase = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}
