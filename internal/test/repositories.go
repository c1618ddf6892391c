package test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// DraftRepositoryStub keeps drafts in memory with the same version and status
// rules as the PostgreSQL repository.
type DraftRepositoryStub struct {
	mu      sync.Mutex
	drafts  map[string]*model.Draft
	seq     map[string]int
	Now     func() time.Time
	Err     error
	Updates int
}

// NewDraftRepositoryStub constructs an empty in-memory draft repository.
func NewDraftRepositoryStub() *DraftRepositoryStub {
	return &DraftRepositoryStub{drafts: make(map[string]*model.Draft), seq: make(map[string]int)}
}

func (s *DraftRepositoryStub) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func clone(d *model.Draft) *model.Draft {
	c := *d
	return &c
}

// Put stores a draft as is, replacing one with the same id.
func (s *DraftRepositoryStub) Put(d model.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(clone(&d))
}

func (s *DraftRepositoryStub) store(d *model.Draft) {
	if s.drafts == nil {
		s.drafts = make(map[string]*model.Draft)
	}
	if s.seq == nil {
		s.seq = make(map[string]int)
	}
	if _, ok := s.seq[d.ID]; !ok {
		s.seq[d.ID] = len(s.seq) + 1
	}
	s.drafts[d.ID] = d
}

// Snapshot returns the stored draft regardless of tenant.
func (s *DraftRepositoryStub) Snapshot(draftID string) (model.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[draftID]
	if !ok {
		return model.Draft{}, false
	}
	return *d, true
}

func (s *DraftRepositoryStub) find(storeID, draftID string) (*model.Draft, error) {
	d, ok := s.drafts[draftID]
	if !ok || d.StoreID != storeID {
		return nil, domainErrors.ErrNotFound
	}
	return d, nil
}

func (s *DraftRepositoryStub) active(storeID, scopeID string) *model.Draft {
	for _, d := range s.drafts {
		if d.StoreID == storeID && d.ScopeID == scopeID && !d.Status.Terminal() {
			return d
		}
	}
	return nil
}

func (s *DraftRepositoryStub) Create(ctx context.Context, draft *model.Draft) (*model.Draft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, false, s.Err
	}
	if existing := s.active(draft.StoreID, draft.ScopeID); existing != nil {
		return clone(existing), false, nil
	}
	now := s.now()
	stored := clone(draft)
	stored.Status = model.DraftStatusInProgress
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.store(stored)
	return clone(stored), true, nil
}

func (s *DraftRepositoryStub) GetByID(ctx context.Context, storeID, draftID string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, err := s.find(storeID, draftID)
	if err != nil {
		return nil, err
	}
	return clone(d), nil
}

func (s *DraftRepositoryStub) GetActiveByScope(ctx context.Context, storeID, scopeID string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if d := s.active(storeID, scopeID); d != nil {
		return clone(d), nil
	}
	return nil, domainErrors.ErrNotFound
}

// GetLatestByScope returns the last created draft of the scope; drafts created
// at the same instant are ordered by insertion.
func (s *DraftRepositoryStub) GetLatestByScope(ctx context.Context, storeID, scopeID string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var latest *model.Draft
	for _, d := range s.drafts {
		if d.StoreID != storeID || d.ScopeID != scopeID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) ||
			(d.CreatedAt.Equal(latest.CreatedAt) && s.seq[d.ID] > s.seq[latest.ID]) {
			latest = d
		}
	}
	if latest == nil {
		return nil, domainErrors.ErrNotFound
	}
	return clone(latest), nil
}

func (s *DraftRepositoryStub) Update(ctx context.Context, storeID, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.UpdateResult{}, s.Err
	}
	d, err := s.find(storeID, draftID)
	if err != nil {
		return model.UpdateResult{}, err
	}
	if d.Status != model.DraftStatusInProgress {
		return model.UpdateResult{}, fmt.Errorf("draft %s is %s: %w", draftID, d.Status, domainErrors.ErrConflict)
	}
	if d.Version != expectedVersion {
		return model.UpdateResult{Conflict: &model.VersionConflict{CurrentVersion: d.Version, ExpectedVersion: expectedVersion}}, nil
	}
	d.Payload = d.Payload.Merge(partial)
	d.Version++
	d.UpdatedAt = s.now()
	s.Updates++
	return model.UpdateResult{Draft: clone(d)}, nil
}

func (s *DraftRepositoryStub) UpdateStepMarker(ctx context.Context, storeID, draftID string, marker model.StepMarker) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, err := s.find(storeID, draftID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DraftStatusInProgress {
		return nil, fmt.Errorf("draft %s is %s: %w", draftID, d.Status, domainErrors.ErrConflict)
	}
	d.StepMarker = marker
	d.Version++
	d.UpdatedAt = s.now()
	return clone(d), nil
}

func (s *DraftRepositoryStub) Transition(ctx context.Context, storeID, draftID string, to model.DraftStatus) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, err := s.find(storeID, draftID)
	if err != nil {
		return nil, err
	}
	noop, err := model.NextStatus(d.Status, to)
	if err != nil {
		return nil, err
	}
	if !noop {
		d.Status = to
		d.Version++
		d.UpdatedAt = s.now()
	}
	return clone(d), nil
}

func (s *DraftRepositoryStub) RecordSettlement(ctx context.Context, storeID, draftID, settlementID string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, err := s.find(storeID, draftID)
	if err != nil {
		return nil, err
	}
	if d.SettlementID != "" {
		if d.SettlementID != settlementID {
			return nil, fmt.Errorf("draft %s already settled: %w", draftID, domainErrors.ErrConflict)
		}
		return clone(d), nil
	}
	if d.Status != model.DraftStatusFinalizing {
		return nil, fmt.Errorf("draft %s is %s: %w", draftID, d.Status, domainErrors.ErrConflict)
	}
	d.SettlementID = settlementID
	d.Version++
	d.UpdatedAt = s.now()
	return clone(d), nil
}

func (s *DraftRepositoryStub) SelectStaleFinalizing(ctx context.Context, before time.Time, limit int) ([]model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var stale []model.Draft
	for _, d := range s.drafts {
		if d.Status == model.DraftStatusFinalizing && d.UpdatedAt.Before(before) {
			stale = append(stale, *d)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// LotteryRepositoryStub lets tests script the lottery repository.
type LotteryRepositoryStub struct {
	OpenDayFn       func(context.Context, string, time.Time) (*model.LotteryDay, error)
	SavePreparedFn  func(context.Context, *model.LotteryClosingAttempt) (*model.LotteryClosingAttempt, error)
	LatestAttemptFn func(context.Context, string, int64, time.Time) (*model.LotteryClosingAttempt, error)
	CommitFn        func(context.Context, string, int64, time.Time) (*model.LotteryCommitResult, error)
	CancelFn        func(context.Context, string, int64, time.Time) (*model.LotteryClosingAttempt, error)

	Saved   []model.LotteryClosingAttempt
	Commits []int64
}

// OpenDay returns day 1 unless overridden.
func (s *LotteryRepositoryStub) OpenDay(ctx context.Context, storeID string, today time.Time) (*model.LotteryDay, error) {
	if s.OpenDayFn != nil {
		return s.OpenDayFn(ctx, storeID, today)
	}
	return &model.LotteryDay{ID: 1, StoreID: storeID, BusinessDate: today, Status: model.LotteryDayOpen}, nil
}

// SavePrepared records the attempt and assigns a sequential id.
func (s *LotteryRepositoryStub) SavePrepared(ctx context.Context, attempt *model.LotteryClosingAttempt) (*model.LotteryClosingAttempt, error) {
	if s.SavePreparedFn != nil {
		return s.SavePreparedFn(ctx, attempt)
	}
	saved := *attempt
	saved.ID = int64(len(s.Saved) + 1)
	saved.Phase = model.LotteryPhasePrepared
	s.Saved = append(s.Saved, saved)
	return &saved, nil
}

// LatestAttempt returns the last saved attempt unless overridden.
func (s *LotteryRepositoryStub) LatestAttempt(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryClosingAttempt, error) {
	if s.LatestAttemptFn != nil {
		return s.LatestAttemptFn(ctx, storeID, dayID, now)
	}
	if len(s.Saved) == 0 {
		return nil, domainErrors.ErrNotFound
	}
	latest := s.Saved[len(s.Saved)-1]
	return &latest, nil
}

// Commit records the call and applies the last saved attempt.
func (s *LotteryRepositoryStub) Commit(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryCommitResult, error) {
	s.Commits = append(s.Commits, dayID)
	if s.CommitFn != nil {
		return s.CommitFn(ctx, storeID, dayID, now)
	}
	if len(s.Saved) == 0 {
		return nil, domainErrors.ErrNotFound
	}
	latest := s.Saved[len(s.Saved)-1]
	return &model.LotteryCommitResult{
		DayID:           dayID,
		ClosingsCreated: len(latest.Lines),
		LotteryTotal:    latest.LotteryTotal,
		NextDayID:       dayID + 1,
	}, nil
}

// Cancel returns a cancelled attempt unless overridden.
func (s *LotteryRepositoryStub) Cancel(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryClosingAttempt, error) {
	if s.CancelFn != nil {
		return s.CancelFn(ctx, storeID, dayID, now)
	}
	return &model.LotteryClosingAttempt{DayID: dayID, StoreID: storeID, Phase: model.LotteryPhaseCancelled}, nil
}

// PackInventoryStub serves packs from a map.
type PackInventoryStub struct {
	Items map[string]model.Pack
	Err   error
}

// Packs returns the known subset of the requested packs.
func (s PackInventoryStub) Packs(ctx context.Context, storeID string, packIDs []string) (map[string]model.Pack, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	result := make(map[string]model.Pack, len(packIDs))
	for _, id := range packIDs {
		if p, ok := s.Items[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

// SettlementGatewayStub records submitted settlements.
type SettlementGatewayStub struct {
	mu       sync.Mutex
	SubmitFn func(context.Context, model.SettlementRequest) (*model.Settlement, error)
	Requests []model.SettlementRequest
}

// Submit returns settlement ids stl-1, stl-2 and so on.
func (s *SettlementGatewayStub) Submit(ctx context.Context, req model.SettlementRequest) (*model.Settlement, error) {
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	n := len(s.Requests)
	s.mu.Unlock()
	if s.SubmitFn != nil {
		return s.SubmitFn(ctx, req)
	}
	return &model.Settlement{ID: fmt.Sprintf("stl-%d", n), DraftID: req.DraftID}, nil
}

// Submitted returns the number of submit calls.
func (s *SettlementGatewayStub) Submitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
