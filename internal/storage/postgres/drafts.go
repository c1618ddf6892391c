package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
)

type draftRepository struct {
	storage *Storage
}

const draftColumns = `id, store_id, scope_id, kind, status, step_marker, payload, version,
                      COALESCE(settlement_id, ''), created_by, created_at, updated_at`

func scanDraft(row pgx.Row) (*model.Draft, error) {
	var (
		d       model.Draft
		payload []byte
	)
	err := row.Scan(&d.ID, &d.StoreID, &d.ScopeID, &d.Kind, &d.Status, &d.StepMarker, &payload, &d.Version,
		&d.SettlementID, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &d.Payload); err != nil {
			return nil, fmt.Errorf("decode draft payload: %w", err)
		}
	}
	return &d, nil
}

func (r *draftRepository) Create(ctx context.Context, draft *model.Draft) (*model.Draft, bool, error) {
	const query = `INSERT INTO closing_drafts (id, store_id, scope_id, kind, status, created_by)
                   VALUES ($1, $2, $3, $4, $5, $6)
                   ON CONFLICT DO NOTHING
                   RETURNING ` + draftColumns
	created, err := scanDraft(r.storage.pool.QueryRow(ctx, query,
		draft.ID, draft.StoreID, draft.ScopeID, draft.Kind, model.DraftStatusInProgress, draft.CreatedBy))
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			existing, err := r.GetActiveByScope(ctx, draft.StoreID, draft.ScopeID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return created, true, nil
}

func (r *draftRepository) GetByID(ctx context.Context, storeID, draftID string) (*model.Draft, error) {
	const query = `SELECT ` + draftColumns + ` FROM closing_drafts WHERE id=$1 AND store_id=$2`
	return scanDraft(r.storage.pool.QueryRow(ctx, query, draftID, storeID))
}

func (r *draftRepository) GetActiveByScope(ctx context.Context, storeID, scopeID string) (*model.Draft, error) {
	const query = `SELECT ` + draftColumns + ` FROM closing_drafts
                   WHERE store_id=$1 AND scope_id=$2 AND status IN ('IN_PROGRESS', 'FINALIZING')`
	return scanDraft(r.storage.pool.QueryRow(ctx, query, storeID, scopeID))
}

func (r *draftRepository) GetLatestByScope(ctx context.Context, storeID, scopeID string) (*model.Draft, error) {
	const query = `SELECT ` + draftColumns + ` FROM closing_drafts
                   WHERE store_id=$1 AND scope_id=$2
                   ORDER BY created_at DESC
                   LIMIT 1`
	return scanDraft(r.storage.pool.QueryRow(ctx, query, storeID, scopeID))
}

func lockDraft(ctx context.Context, tx pgx.Tx, storeID, draftID string) (*model.Draft, error) {
	const query = `SELECT ` + draftColumns + ` FROM closing_drafts WHERE id=$1 AND store_id=$2 FOR UPDATE`
	return scanDraft(tx.QueryRow(ctx, query, draftID, storeID))
}

func (r *draftRepository) Update(ctx context.Context, storeID, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error) {
	patch, err := json.Marshal(partial)
	if err != nil {
		return model.UpdateResult{}, fmt.Errorf("encode draft payload: %w", err)
	}

	var result model.UpdateResult
	err = r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		current, err := lockDraft(ctx, tx, storeID, draftID)
		if err != nil {
			return err
		}
		if current.Status != model.DraftStatusInProgress {
			return fmt.Errorf("draft %s is %s: %w", draftID, current.Status, domainErrors.ErrConflict)
		}
		if current.Version != expectedVersion {
			result.Conflict = &model.VersionConflict{CurrentVersion: current.Version, ExpectedVersion: expectedVersion}
			return nil
		}

		const updateQuery = `UPDATE closing_drafts
                             SET payload = payload || $1::jsonb, version = version + 1, updated_at = NOW()
                             WHERE id=$2
                             RETURNING ` + draftColumns
		updated, err := scanDraft(tx.QueryRow(ctx, updateQuery, string(patch), draftID))
		if err != nil {
			return err
		}
		result.Draft = updated
		return nil
	})
	if err != nil {
		return model.UpdateResult{}, err
	}
	if result.Conflict != nil {
		r.storage.logger.Info("draft update rejected",
			slog.String("draft_id", draftID),
			slog.Int64("current_version", result.Conflict.CurrentVersion),
			slog.Int64("expected_version", result.Conflict.ExpectedVersion),
		)
	}
	return result, nil
}

func (r *draftRepository) UpdateStepMarker(ctx context.Context, storeID, draftID string, marker model.StepMarker) (*model.Draft, error) {
	var updated *model.Draft
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		current, err := lockDraft(ctx, tx, storeID, draftID)
		if err != nil {
			return err
		}
		if current.Status != model.DraftStatusInProgress {
			return fmt.Errorf("draft %s is %s: %w", draftID, current.Status, domainErrors.ErrConflict)
		}
		const query = `UPDATE closing_drafts SET step_marker=$1, version = version + 1, updated_at = NOW()
                       WHERE id=$2
                       RETURNING ` + draftColumns
		updated, err = scanDraft(tx.QueryRow(ctx, query, marker, draftID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *draftRepository) Transition(ctx context.Context, storeID, draftID string, to model.DraftStatus) (*model.Draft, error) {
	var result *model.Draft
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		current, err := lockDraft(ctx, tx, storeID, draftID)
		if err != nil {
			return err
		}
		noop, err := model.NextStatus(current.Status, to)
		if err != nil {
			return err
		}
		if noop {
			result = current
			return nil
		}
		const query = `UPDATE closing_drafts SET status=$1, version = version + 1, updated_at = NOW()
                       WHERE id=$2
                       RETURNING ` + draftColumns
		result, err = scanDraft(tx.QueryRow(ctx, query, to, draftID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *draftRepository) RecordSettlement(ctx context.Context, storeID, draftID, settlementID string) (*model.Draft, error) {
	var result *model.Draft
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		current, err := lockDraft(ctx, tx, storeID, draftID)
		if err != nil {
			return err
		}
		if current.SettlementID != "" {
			if current.SettlementID != settlementID {
				return fmt.Errorf("draft %s already settled as %s: %w", draftID, current.SettlementID, domainErrors.ErrConflict)
			}
			result = current
			return nil
		}
		if current.Status != model.DraftStatusFinalizing {
			return fmt.Errorf("draft %s is %s: %w", draftID, current.Status, domainErrors.ErrConflict)
		}
		const query = `UPDATE closing_drafts SET settlement_id=$1, version = version + 1, updated_at = NOW()
                       WHERE id=$2
                       RETURNING ` + draftColumns
		result, err = scanDraft(tx.QueryRow(ctx, query, settlementID, draftID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SelectStaleFinalizing lists drafts left in FINALIZING since before. Rows are
// not claimed; every transition applied to them re-checks the status under a row lock.
func (r *draftRepository) SelectStaleFinalizing(ctx context.Context, before time.Time, limit int) ([]model.Draft, error) {
	const query = `SELECT ` + draftColumns + ` FROM closing_drafts
                   WHERE status = 'FINALIZING' AND updated_at < $1
                   ORDER BY updated_at
                   LIMIT $2`

	rows, err := r.storage.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drafts, nil
}
