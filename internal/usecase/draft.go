package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/domain/repository"
)

// DraftUseCase is the versioned document store of closing drafts.
type DraftUseCase struct {
	drafts repository.DraftRepository
	newID  func() string
	logger *slog.Logger
}

// NewDraftUseCase constructs DraftUseCase.
func NewDraftUseCase(drafts repository.DraftRepository, logger *slog.Logger) *DraftUseCase {
	return &DraftUseCase{drafts: drafts, newID: uuid.NewString, logger: logger}
}

func authorize(actor model.Actor, required model.Role) error {
	if actor.StoreID == "" || !actor.Can(required) {
		return fmt.Errorf("role %s required: %w", required, domainErrors.ErrForbidden)
	}
	return nil
}

// Create returns the active draft of the scope or starts a new one. The flag
// reports whether a draft was inserted.
func (u *DraftUseCase) Create(ctx context.Context, actor model.Actor, scopeID string, kind model.DraftKind) (*model.Draft, bool, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return nil, false, err
	}

	scopeID = strings.TrimSpace(scopeID)
	var problems []string
	if scopeID == "" {
		problems = append(problems, "scope_id is required")
	}
	if !kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown kind %q", kind))
	}
	if len(problems) > 0 {
		return nil, false, domainErrors.NewValidationError(problems...)
	}

	draft, created, err := u.drafts.Create(ctx, &model.Draft{
		ID:        u.newID(),
		StoreID:   actor.StoreID,
		ScopeID:   scopeID,
		Kind:      kind,
		CreatedBy: actor.UserID,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		u.logger.Info("draft created",
			slog.String("draft_id", draft.ID),
			slog.String("scope_id", scopeID),
			slog.String("kind", string(kind)),
			slog.String("user_id", actor.UserID),
		)
	}
	return draft, created, nil
}

// GetActive returns nil without error when the scope has no open draft.
func (u *DraftUseCase) GetActive(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return nil, err
	}
	draft, err := u.drafts.GetActiveByScope(ctx, actor.StoreID, scopeID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, nil
	}
	return draft, err
}

// GetLatest returns the newest draft of the scope in any status, or nil when
// the scope never had one.
func (u *DraftUseCase) GetLatest(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return nil, err
	}
	draft, err := u.drafts.GetLatestByScope(ctx, actor.StoreID, scopeID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, nil
	}
	return draft, err
}

func (u *DraftUseCase) Get(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return nil, err
	}
	return u.drafts.GetByID(ctx, actor.StoreID, draftID)
}

// Update merges partial into the stored payload when expectedVersion is current.
// A stale version comes back as UpdateResult.Conflict, not as an error.
func (u *DraftUseCase) Update(ctx context.Context, actor model.Actor, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return model.UpdateResult{}, err
	}
	if expectedVersion < 1 {
		return model.UpdateResult{}, domainErrors.NewValidationError("expected_version must be positive")
	}
	if partial.IsEmpty() {
		return model.UpdateResult{}, domainErrors.NewValidationError("payload has no fields")
	}
	if err := partial.Validate(); err != nil {
		return model.UpdateResult{}, err
	}
	return u.drafts.Update(ctx, actor.StoreID, draftID, partial, expectedVersion)
}

func (u *DraftUseCase) UpdateStepMarker(ctx context.Context, actor model.Actor, draftID string, marker model.StepMarker) (*model.Draft, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return nil, err
	}
	if !marker.Valid() {
		return nil, domainErrors.NewValidationError(fmt.Sprintf("unknown step marker %q", marker))
	}
	return u.drafts.UpdateStepMarker(ctx, actor.StoreID, draftID, marker)
}

// MarkFinalizing claims the draft for a finalize sequence. A second claimant gets ErrConflict.
func (u *DraftUseCase) MarkFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return u.transition(ctx, actor, model.RoleClerk, draftID, model.DraftStatusFinalizing)
}

// RevertFinalizing hands a draft whose finalize failed back to the operator.
func (u *DraftUseCase) RevertFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return u.transition(ctx, actor, model.RoleClerk, draftID, model.DraftStatusInProgress)
}

func (u *DraftUseCase) Finalize(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return u.transition(ctx, actor, model.RoleManager, draftID, model.DraftStatusFinalized)
}

func (u *DraftUseCase) Expire(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return u.transition(ctx, actor, model.RoleManager, draftID, model.DraftStatusExpired)
}

func (u *DraftUseCase) transition(ctx context.Context, actor model.Actor, required model.Role, draftID string, to model.DraftStatus) (*model.Draft, error) {
	if err := authorize(actor, required); err != nil {
		return nil, err
	}
	draft, err := u.drafts.Transition(ctx, actor.StoreID, draftID, to)
	if err != nil {
		return nil, err
	}
	u.logger.Info("draft status changed",
		slog.String("draft_id", draftID),
		slog.String("status", string(draft.Status)),
		slog.String("user_id", actor.UserID),
	)
	return draft, nil
}

// StaleFinalizing lists drafts left in FINALIZING since before the given time.
func (u *DraftUseCase) StaleFinalizing(ctx context.Context, before time.Time, limit int) ([]model.Draft, error) {
	return u.drafts.SelectStaleFinalizing(ctx, before, limit)
}
