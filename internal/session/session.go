package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// DefaultAutosaveDelay is the quiet window after the last edit before a write.
const DefaultAutosaveDelay = 500 * time.Millisecond

// ErrClosed is returned by edits on a closed or discarded session.
var ErrClosed = errors.New("session closed")

// Store is the versioned draft store as seen by one signed-in operator.
type Store interface {
	GetActive(ctx context.Context, scopeID string) (*model.Draft, error)
	Create(ctx context.Context, scopeID string, kind model.DraftKind) (*model.Draft, bool, error)
	Get(ctx context.Context, draftID string) (*model.Draft, error)
	Update(ctx context.Context, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error)
	UpdateStepMarker(ctx context.Context, draftID string, marker model.StepMarker) (*model.Draft, error)
	Expire(ctx context.Context, draftID string) (*model.Draft, error)
}

// Options tunes a session.
type Options struct {
	AutosaveDelay time.Duration
	// OnError receives failures of timer-driven saves.
	OnError func(error)
	Logger  *slog.Logger
}

// ConflictError is returned when a save still conflicts after the automatic retry.
type ConflictError struct {
	Conflict model.VersionConflict
	Current  *model.Draft
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("draft changed concurrently: server at version %d, save made against %d",
		e.Conflict.CurrentVersion, e.Conflict.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error {
	return domainErrors.ErrVersionConflict
}

// Session buffers edits of one draft and writes them to the store after a
// quiet window. The pending buffer survives until the server confirms it.
type Session struct {
	store   Store
	delay   time.Duration
	onError func(error)
	logger  *slog.Logger

	// writeMu serializes round trips that change the draft version.
	writeMu sync.Mutex

	mu      sync.Mutex
	draft   model.Draft
	local   model.DraftPayload
	pending model.DraftPayload
	gen     uint64
	timer   *time.Timer
	wake    uint64
	closed  bool
}

// Open resumes the active draft of the scope or creates one, and rebuilds
// local state from the persisted payload only.
func Open(ctx context.Context, store Store, scopeID string, kind model.DraftKind, opts Options) (*Session, error) {
	draft, err := store.GetActive(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("load active draft: %w", err)
	}
	if draft == nil {
		if draft, _, err = store.Create(ctx, scopeID, kind); err != nil {
			return nil, fmt.Errorf("create draft: %w", err)
		}
	}
	return Resume(store, draft, opts), nil
}

// Resume builds a session over a draft already loaded from store.
func Resume(store Store, draft *model.Draft, opts Options) *Session {
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = DefaultAutosaveDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		store:   store,
		delay:   opts.AutosaveDelay,
		onError: opts.OnError,
		logger:  opts.Logger.With(slog.String("draft_id", draft.ID)),
		draft:   *draft,
		local:   draft.Payload,
	}
	s.logger.Debug("draft session opened",
		slog.String("scope_id", draft.ScopeID),
		slog.String("status", string(draft.Status)),
		slog.Int64("version", draft.Version),
	)
	return s
}

func (s *Session) DraftID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.ID
}

// Draft returns the last confirmed draft with local edits applied to its payload.
func (s *Session) Draft() model.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.Payload = s.local
	return d
}

func (s *Session) Payload() model.DraftPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Session) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.pending.IsEmpty()
}

func (s *Session) UpdateLottery(step model.LotteryStep) error {
	return s.Edit(model.DraftPayload{Lottery: &step})
}

func (s *Session) UpdateReports(step model.ReportsStep) error {
	return s.Edit(model.DraftPayload{Reports: &step})
}

func (s *Session) UpdateClosingCash(amount decimal.Decimal) error {
	return s.Edit(model.DraftPayload{ClosingCash: &amount})
}

// Edit applies partial locally and restarts the autosave timer.
func (s *Session) Edit(partial model.DraftPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stageLocked(partial)
	s.scheduleLocked()
	return nil
}

// Stage applies partial locally without scheduling a write.
func (s *Session) Stage(partial model.DraftPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stageLocked(partial)
	return nil
}

func (s *Session) stageLocked(partial model.DraftPayload) {
	s.local = s.local.Merge(partial)
	s.pending = s.pending.Merge(partial)
	s.gen++
}

func (s *Session) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.wake++
	token := s.wake
	s.timer = time.AfterFunc(s.delay, func() { s.autosave(token) })
}

// StopTimer cancels a scheduled autosave. Pending edits stay buffered.
func (s *Session) StopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.wake++
}

func (s *Session) autosave(token uint64) {
	s.mu.Lock()
	if s.closed || token != s.wake {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if _, err := s.Save(context.Background()); err != nil {
		s.logger.Warn("autosave failed", slog.String("error", err.Error()))
		if s.onError != nil {
			s.onError(err)
		}
		if retryable(err) {
			s.rearm(token)
		}
	}
}

// rearm schedules another autosave unless the session moved on since token.
func (s *Session) rearm(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || token != s.wake || s.pending.IsEmpty() {
		return
	}
	s.scheduleLocked()
}

// retryable reports whether a failed write may succeed unchanged later.
// Conflicts wait for the operator, rejections never clear on their own.
func retryable(err error) bool {
	for _, permanent := range []error{
		domainErrors.ErrVersionConflict,
		domainErrors.ErrConflict,
		domainErrors.ErrNotFound,
		domainErrors.ErrValidation,
		domainErrors.ErrForbidden,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

// Save writes the pending edits now. A version conflict is retried once
// against a freshly loaded draft; a second one returns *ConflictError.
func (s *Session) Save(ctx context.Context) (*model.Draft, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.pending.IsEmpty() {
		d := s.draft
		d.Payload = s.local
		s.mu.Unlock()
		return &d, nil
	}
	draftID, version := s.draft.ID, s.draft.Version
	partial, gen := s.pending, s.gen
	s.mu.Unlock()

	result, err := s.store.Update(ctx, draftID, partial, version)
	if err != nil {
		return nil, err
	}

	if result.Conflict != nil {
		s.logger.Info("draft version conflict, retrying",
			slog.Int64("current_version", result.Conflict.CurrentVersion),
			slog.Int64("expected_version", result.Conflict.ExpectedVersion),
		)
		fresh, err := s.store.Get(ctx, draftID)
		if err != nil {
			return nil, fmt.Errorf("reload draft after conflict: %w", err)
		}

		s.mu.Lock()
		s.adoptLocked(fresh)
		partial, gen = s.pending, s.gen
		s.mu.Unlock()

		if result, err = s.store.Update(ctx, draftID, partial, fresh.Version); err != nil {
			return nil, err
		}
		if result.Conflict != nil {
			current, err := s.store.Get(ctx, draftID)
			if err != nil {
				return nil, fmt.Errorf("reload draft after conflict: %w", err)
			}
			s.logger.Warn("draft save rejected twice",
				slog.Int64("current_version", result.Conflict.CurrentVersion),
				slog.Int64("expected_version", result.Conflict.ExpectedVersion),
			)
			return nil, &ConflictError{Conflict: *result.Conflict, Current: current}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.pending = model.DraftPayload{}
	}
	s.adoptLocked(result.Draft)
	d := s.draft
	d.Payload = s.local
	return &d, nil
}

// adoptLocked takes a server draft as the confirmed base and replays edits still pending.
func (s *Session) adoptLocked(d *model.Draft) {
	s.draft = *d
	s.local = d.Payload.Merge(s.pending)
}

// ResolveConflict settles a *ConflictError. With overwrite the pending edits
// are written on top of the current server draft; otherwise they are dropped
// and the server draft is adopted.
func (s *Session) ResolveConflict(ctx context.Context, current *model.Draft, overwrite bool) (*model.Draft, error) {
	if current == nil {
		return nil, fmt.Errorf("current draft is required: %w", domainErrors.ErrValidation)
	}
	s.mu.Lock()
	if !overwrite {
		s.pending = model.DraftPayload{}
		s.gen++
	}
	s.adoptLocked(current)
	s.mu.Unlock()
	return s.Save(ctx)
}

// UpdateStepMarker records the wizard position. The returned version becomes the new base.
func (s *Session) UpdateStepMarker(ctx context.Context, marker model.StepMarker) (*model.Draft, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updated, err := s.store.UpdateStepMarker(ctx, s.DraftID(), marker)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptLocked(updated)
	d := s.draft
	d.Payload = s.local
	return &d, nil
}

// Refresh reloads the draft from the store, keeping pending edits on top.
func (s *Session) Refresh(ctx context.Context) (*model.Draft, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	fresh, err := s.store.Get(ctx, s.DraftID())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptLocked(fresh)
	d := s.draft
	d.Payload = s.local
	return &d, nil
}

// Discard abandons the wizard: pending edits are dropped and the draft expires.
func (s *Session) Discard(ctx context.Context) (*model.Draft, error) {
	s.mu.Lock()
	s.stopTimerLocked()
	s.pending = model.DraftPayload{}
	s.gen++
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	expired, err := s.store.Expire(ctx, s.DraftID())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.adoptLocked(expired)
	s.mu.Unlock()
	s.logger.Info("draft discarded")
	return expired, nil
}

// Close stops autosave without writing. Whatever the server confirmed is kept.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.closed = true
}
