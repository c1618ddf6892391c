package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// RecoveryActorID is recorded as the user acting on recovered drafts.
const RecoveryActorID = "recovery"

// RecoveryFacade exposes the subset of application functionality required by the worker.
type RecoveryFacade interface {
	StaleFinalizing(ctx context.Context, before time.Time, limit int) ([]model.Draft, error)
	Finalize(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	RevertFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
}

// FinalizingRecovery resolves drafts left in FINALIZING by an interrupted finalize.
// A draft that already carries a settlement is finalized, any other is reverted
// to IN_PROGRESS so the operator can finalize it again.
type FinalizingRecovery struct {
	facade       RecoveryFacade
	pollInterval time.Duration
	staleAfter   time.Duration
	batchSize    int
	workers      int
	logger       *slog.Logger
	now          func() time.Time

	jobs   chan model.Draft
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewFinalizingRecovery constructs the recovery worker pool.
func NewFinalizingRecovery(facade RecoveryFacade, pollInterval, staleAfter time.Duration, batchSize, workers int, logger *slog.Logger) *FinalizingRecovery {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &FinalizingRecovery{
		facade:       facade,
		pollInterval: pollInterval,
		staleAfter:   staleAfter,
		batchSize:    batchSize,
		workers:      workers,
		logger:       logger,
		now:          time.Now,
		jobs:         make(chan model.Draft, batchSize*workers),
	}
}

// Start launches background processing.
func (r *FinalizingRecovery) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx)
	}

	r.wg.Add(1)
	go r.dispatch(runCtx)
}

// Stop waits for all workers to finish.
func (r *FinalizingRecovery) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *FinalizingRecovery) dispatch(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.jobs)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *FinalizingRecovery) sweep(ctx context.Context) {
	drafts, err := r.facade.StaleFinalizing(ctx, r.now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		r.logger.Error("select stale finalizing drafts failed", slog.String("error", err.Error()))
		return
	}
	for _, d := range drafts {
		select {
		case <-ctx.Done():
			return
		case r.jobs <- d:
		}
	}
}

func (r *FinalizingRecovery) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-r.jobs:
			if !ok {
				return
			}
			r.recover(ctx, d)
		}
	}
}

func (r *FinalizingRecovery) recover(ctx context.Context, d model.Draft) {
	actor := model.Actor{UserID: RecoveryActorID, StoreID: d.StoreID, Role: model.RoleManager}

	if d.SettlementID != "" {
		if _, err := r.facade.Finalize(ctx, actor, d.ID); err != nil {
			r.logger.Error("finalize recovered draft failed", slog.String("draft_id", d.ID), slog.String("error", err.Error()))
			return
		}
		r.logger.Info("recovered draft finalized", slog.String("draft_id", d.ID), slog.String("settlement_id", d.SettlementID))
		return
	}

	if _, err := r.facade.RevertFinalizing(ctx, actor, d.ID); err != nil {
		r.logger.Error("revert recovered draft failed", slog.String("draft_id", d.ID), slog.String("error", err.Error()))
		return
	}
	r.logger.Warn("stale finalizing draft reverted", slog.String("draft_id", d.ID), slog.Time("updated_at", d.UpdatedAt))
}
