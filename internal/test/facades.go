package test

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// StubDraft returns an IN_PROGRESS draft of the actor's store.
func StubDraft(actor model.Actor, draftID string) *model.Draft {
	return &model.Draft{
		ID:        draftID,
		StoreID:   actor.StoreID,
		ScopeID:   "shift-1",
		Kind:      model.DraftKindShiftClose,
		Status:    model.DraftStatusInProgress,
		Version:   1,
		CreatedBy: actor.UserID,
		CreatedAt: time.Unix(0, 0).UTC(),
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
}

// DraftFacadeStub provides controllable behaviour for draft endpoints.
type DraftFacadeStub struct {
	CreateFn     func(context.Context, model.Actor, string, model.DraftKind) (*model.Draft, bool, error)
	ActiveFn     func(context.Context, model.Actor, string) (*model.Draft, error)
	LatestFn     func(context.Context, model.Actor, string) (*model.Draft, error)
	GetFn        func(context.Context, model.Actor, string) (*model.Draft, error)
	UpdateFn     func(context.Context, model.Actor, string, model.DraftPayload, int64) (model.UpdateResult, error)
	StepFn       func(context.Context, model.Actor, string, model.StepMarker) (*model.Draft, error)
	TransitionFn func(context.Context, model.Actor, string, model.DraftStatus) (*model.Draft, error)
	SettleFn     func(context.Context, model.Actor, string, decimal.Decimal) (*model.Settlement, error)
}

// CreateDraft returns a new draft for the scope.
func (s DraftFacadeStub) CreateDraft(ctx context.Context, actor model.Actor, scopeID string, kind model.DraftKind) (*model.Draft, bool, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, actor, scopeID, kind)
	}
	d := StubDraft(actor, "draft-1")
	d.ScopeID = scopeID
	d.Kind = kind
	return d, true, nil
}

// ActiveDraft reports no active draft unless overridden.
func (s DraftFacadeStub) ActiveDraft(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error) {
	if s.ActiveFn != nil {
		return s.ActiveFn(ctx, actor, scopeID)
	}
	return nil, nil
}

// LatestDraft reports no draft for the scope unless overridden.
func (s DraftFacadeStub) LatestDraft(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error) {
	if s.LatestFn != nil {
		return s.LatestFn(ctx, actor, scopeID)
	}
	return nil, nil
}

// Draft returns a stub draft with the requested id.
func (s DraftFacadeStub) Draft(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, actor, draftID)
	}
	return StubDraft(actor, draftID), nil
}

// UpdateDraft merges the partial into a stub draft at expectedVersion+1.
func (s DraftFacadeStub) UpdateDraft(ctx context.Context, actor model.Actor, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error) {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, actor, draftID, partial, expectedVersion)
	}
	d := StubDraft(actor, draftID)
	d.Payload = partial
	d.Version = expectedVersion + 1
	return model.UpdateResult{Draft: d}, nil
}

// UpdateStepMarker stores the marker on a stub draft.
func (s DraftFacadeStub) UpdateStepMarker(ctx context.Context, actor model.Actor, draftID string, marker model.StepMarker) (*model.Draft, error) {
	if s.StepFn != nil {
		return s.StepFn(ctx, actor, draftID, marker)
	}
	d := StubDraft(actor, draftID)
	d.StepMarker = marker
	d.Version = 2
	return d, nil
}

func (s DraftFacadeStub) transition(ctx context.Context, actor model.Actor, draftID string, to model.DraftStatus) (*model.Draft, error) {
	if s.TransitionFn != nil {
		return s.TransitionFn(ctx, actor, draftID, to)
	}
	d := StubDraft(actor, draftID)
	d.Status = to
	d.Version = 2
	return d, nil
}

func (s DraftFacadeStub) MarkFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.transition(ctx, actor, draftID, model.DraftStatusFinalizing)
}

func (s DraftFacadeStub) RevertFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.transition(ctx, actor, draftID, model.DraftStatusInProgress)
}

func (s DraftFacadeStub) Finalize(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.transition(ctx, actor, draftID, model.DraftStatusFinalized)
}

func (s DraftFacadeStub) Expire(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.transition(ctx, actor, draftID, model.DraftStatusExpired)
}

// Settle returns settlement stl-1 unless overridden.
func (s DraftFacadeStub) Settle(ctx context.Context, actor model.Actor, draftID string, closingCash decimal.Decimal) (*model.Settlement, error) {
	if s.SettleFn != nil {
		return s.SettleFn(ctx, actor, draftID, closingCash)
	}
	return &model.Settlement{ID: "stl-1", DraftID: draftID}, nil
}

// LotteryFacadeStub simulates the lottery coordinator.
type LotteryFacadeStub struct {
	PrepareFn func(context.Context, model.Actor, []model.PrepareLine) (*model.LotteryClosingAttempt, error)
	AttemptFn func(context.Context, model.Actor, int64) (*model.LotteryClosingAttempt, error)
	CommitFn  func(context.Context, model.Actor, int64, model.CommitOptions) (*model.LotteryCommitResult, error)
	CancelFn  func(context.Context, model.Actor, int64) (*model.LotteryClosingAttempt, error)
}

// PrepareLottery returns a prepared attempt for day 1.
func (s LotteryFacadeStub) PrepareLottery(ctx context.Context, actor model.Actor, lines []model.PrepareLine) (*model.LotteryClosingAttempt, error) {
	if s.PrepareFn != nil {
		return s.PrepareFn(ctx, actor, lines)
	}
	return &model.LotteryClosingAttempt{
		ID:        1,
		DayID:     1,
		StoreID:   actor.StoreID,
		Phase:     model.LotteryPhasePrepared,
		ExpiresAt: time.Unix(900, 0).UTC(),
	}, nil
}

// LotteryAttempt returns a prepared attempt for the day.
func (s LotteryFacadeStub) LotteryAttempt(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error) {
	if s.AttemptFn != nil {
		return s.AttemptFn(ctx, actor, dayID)
	}
	return &model.LotteryClosingAttempt{ID: 1, DayID: dayID, StoreID: actor.StoreID, Phase: model.LotteryPhasePrepared}, nil
}

// CommitLottery returns an empty commit result for the day.
func (s LotteryFacadeStub) CommitLottery(ctx context.Context, actor model.Actor, dayID int64, opts model.CommitOptions) (*model.LotteryCommitResult, error) {
	if s.CommitFn != nil {
		return s.CommitFn(ctx, actor, dayID, opts)
	}
	return &model.LotteryCommitResult{DayID: dayID, NextDayID: dayID + 1}, nil
}

// CancelLottery returns a cancelled attempt for the day.
func (s LotteryFacadeStub) CancelLottery(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error) {
	if s.CancelFn != nil {
		return s.CancelFn(ctx, actor, dayID)
	}
	return &model.LotteryClosingAttempt{ID: 1, DayID: dayID, StoreID: actor.StoreID, Phase: model.LotteryPhaseCancelled}, nil
}

// ClosingFacadeStub aggregates facade dependencies for HTTP layer tests.
type ClosingFacadeStub struct {
	TokenParserStub
	DraftFacadeStub
	LotteryFacadeStub
}

// RecoveryCall stores information about a recovery action.
type RecoveryCall struct {
	DraftID string
	Actor   model.Actor
	To      model.DraftStatus
}

// RecoveryFacadeStub mimics worker interactions with the closing facade.
type RecoveryFacadeStub struct {
	Batches  [][]model.Draft
	StaleFn  func(context.Context, time.Time, int) ([]model.Draft, error)
	ActionFn func(context.Context, model.Actor, string, model.DraftStatus) error
	Calls    []RecoveryCall
	mu       sync.Mutex
	polled   int
}

// Lock exposes internal mutex for external synchronization.
func (s *RecoveryFacadeStub) Lock() { s.mu.Lock() }

// Unlock releases previously acquired lock.
func (s *RecoveryFacadeStub) Unlock() { s.mu.Unlock() }

// StaleFinalizing returns batches from configured queue, then nothing.
func (s *RecoveryFacadeStub) StaleFinalizing(ctx context.Context, before time.Time, limit int) ([]model.Draft, error) {
	if s.StaleFn != nil {
		return s.StaleFn(ctx, before, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polled++
	if s.polled <= len(s.Batches) {
		return s.Batches[s.polled-1], nil
	}
	return nil, nil
}

func (s *RecoveryFacadeStub) record(ctx context.Context, actor model.Actor, draftID string, to model.DraftStatus) (*model.Draft, error) {
	if s.ActionFn != nil {
		if err := s.ActionFn(ctx, actor, draftID, to); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.Calls = append(s.Calls, RecoveryCall{DraftID: draftID, Actor: actor, To: to})
	s.mu.Unlock()
	d := StubDraft(actor, draftID)
	d.Status = to
	return d, nil
}

// Finalize records a finalize request.
func (s *RecoveryFacadeStub) Finalize(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.record(ctx, actor, draftID, model.DraftStatusFinalized)
}

// RevertFinalizing records a revert request.
func (s *RecoveryFacadeStub) RevertFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return s.record(ctx, actor, draftID, model.DraftStatusInProgress)
}
