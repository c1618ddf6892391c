package repository

import (
	"context"
	"time"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// DraftRepository persists closing drafts. Every lookup is scoped to a store,
// so a draft of another store behaves as absent.
type DraftRepository interface {
	Create(ctx context.Context, draft *model.Draft) (*model.Draft, bool, error)
	GetByID(ctx context.Context, storeID, draftID string) (*model.Draft, error)
	GetActiveByScope(ctx context.Context, storeID, scopeID string) (*model.Draft, error)
	// GetLatestByScope returns the most recently created draft of the scope in any status.
	GetLatestByScope(ctx context.Context, storeID, scopeID string) (*model.Draft, error)
	Update(ctx context.Context, storeID, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error)
	UpdateStepMarker(ctx context.Context, storeID, draftID string, marker model.StepMarker) (*model.Draft, error)
	Transition(ctx context.Context, storeID, draftID string, to model.DraftStatus) (*model.Draft, error)
	RecordSettlement(ctx context.Context, storeID, draftID, settlementID string) (*model.Draft, error)
	SelectStaleFinalizing(ctx context.Context, before time.Time, limit int) ([]model.Draft, error)
}
