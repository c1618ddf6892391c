package finalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// Session is the part of a draft session the finalize sequence drives.
type Session interface {
	DraftID() string
	StopTimer()
	Stage(partial model.DraftPayload) error
	Save(ctx context.Context) (*model.Draft, error)
}

// Drafts performs the draft writes of the finalize sequence.
type Drafts interface {
	Get(ctx context.Context, draftID string) (*model.Draft, error)
	MarkFinalizing(ctx context.Context, draftID string) (*model.Draft, error)
	RevertFinalizing(ctx context.Context, draftID string) (*model.Draft, error)
	Settle(ctx context.Context, draftID string, closingCash decimal.Decimal) (*model.Settlement, error)
	Finalize(ctx context.Context, draftID string) (*model.Draft, error)
}

// Lottery resolves the pending lottery close of a day.
type Lottery interface {
	Attempt(ctx context.Context, dayID int64) (*model.LotteryClosingAttempt, error)
	Commit(ctx context.Context, dayID int64, opts model.CommitOptions) (*model.LotteryCommitResult, error)
}

// Result is the outcome of a successful finalize.
type Result struct {
	Draft        *model.Draft
	SettlementID string
	// Lottery is nil when the draft had no lottery day to close.
	Lottery *model.LotteryCommitResult
}

// Orchestrator runs the finalize sequence: flush, lottery commit, settlement, FINALIZED.
type Orchestrator struct {
	drafts  Drafts
	lottery Lottery
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	done  map[string]*Result
}

// NewOrchestrator constructs Orchestrator.
func NewOrchestrator(drafts Drafts, lottery Lottery, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		drafts:  drafts,
		lottery: lottery,
		logger:  logger,
		done:    make(map[string]*Result),
	}
}

// Finalize closes the session's draft. Concurrent calls for one draft share a
// single run, and a finalized draft returns its earlier result.
func (o *Orchestrator) Finalize(ctx context.Context, sess Session, closingCash decimal.Decimal) (*Result, error) {
	if closingCash.IsNegative() {
		return nil, domainErrors.NewValidationError("closing_cash must not be negative")
	}
	draftID := sess.DraftID()

	v, err, shared := o.group.Do(draftID, func() (any, error) {
		if res, ok := o.cached(draftID); ok {
			return res, nil
		}
		res, err := o.run(ctx, sess, closingCash)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.done[draftID] = res
		o.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.logger.Debug("finalize joined in-flight run", slog.String("draft_id", draftID))
	}
	return v.(*Result), nil
}

func (o *Orchestrator) cached(draftID string) (*Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, ok := o.done[draftID]
	return res, ok
}

func (o *Orchestrator) run(ctx context.Context, sess Session, closingCash decimal.Decimal) (*Result, error) {
	draftID := sess.DraftID()
	logger := o.logger.With(slog.String("draft_id", draftID))

	sess.StopTimer()

	current, err := o.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	switch current.Status {
	case model.DraftStatusFinalized:
		logger.Info("draft already finalized")
		return &Result{Draft: current, SettlementID: current.SettlementID}, nil
	case model.DraftStatusFinalizing:
		if current.SettlementID != "" {
			logger.Info("resuming settled finalize", slog.String("settlement_id", current.SettlementID))
			return o.finish(ctx, logger, current, current.Payload, closingCash, false)
		}
		// An interrupted run left the draft marked before settlement. Hand it
		// back and run the whole sequence with the new input.
		logger.Info("reopening interrupted finalize")
		if _, err := o.drafts.RevertFinalizing(ctx, draftID); err != nil {
			return nil, fmt.Errorf("reopen draft: %w", err)
		}
	}

	if err := sess.Stage(model.DraftPayload{ClosingCash: &closingCash}); err != nil {
		return nil, err
	}
	saved, err := sess.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("flush draft: %w", err)
	}

	marked, err := o.drafts.MarkFinalizing(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("mark finalizing: %w", err)
	}

	return o.finish(ctx, logger, marked, saved.Payload, closingCash, true)
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, marked *model.Draft, payload model.DraftPayload, closingCash decimal.Decimal, revertOnError bool) (*Result, error) {
	res, err := o.complete(ctx, marked, payload, closingCash)
	if err != nil {
		if revertOnError {
			o.revert(ctx, logger, marked.ID)
		}
		return nil, err
	}
	logger.Info("draft finalized",
		slog.String("settlement_id", res.SettlementID),
		slog.Bool("lottery_committed", res.Lottery != nil),
	)
	return res, nil
}

func (o *Orchestrator) complete(ctx context.Context, marked *model.Draft, payload model.DraftPayload, closingCash decimal.Decimal) (*Result, error) {
	res := &Result{}

	if payload.Lottery != nil && payload.Lottery.PendingDayID != nil {
		committed, err := o.commitLottery(ctx, *payload.Lottery)
		if err != nil {
			return nil, err
		}
		res.Lottery = committed
	}

	res.SettlementID = marked.SettlementID
	if res.SettlementID == "" {
		settlement, err := o.drafts.Settle(ctx, marked.ID, closingCash)
		if err != nil {
			return nil, fmt.Errorf("settle: %w", err)
		}
		res.SettlementID = settlement.ID
	}

	finalized, err := o.drafts.Finalize(ctx, marked.ID)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	res.Draft = finalized
	return res, nil
}

func (o *Orchestrator) commitLottery(ctx context.Context, step model.LotteryStep) (*model.LotteryCommitResult, error) {
	dayID := *step.PendingDayID
	attempt, err := o.lottery.Attempt(ctx, dayID)
	if err != nil {
		return nil, fmt.Errorf("load lottery attempt: %w", err)
	}

	switch attempt.Phase {
	case model.LotteryPhaseCommitted:
		return attempt.CommitResult(), nil
	case model.LotteryPhaseExpired:
		return nil, fmt.Errorf("lottery day %d must be scanned again: %w", dayID, domainErrors.ErrExpired)
	case model.LotteryPhaseCancelled:
		if step.TicketsSold != 0 || !step.SalesTotal.IsZero() {
			return nil, fmt.Errorf("lottery day %d was cancelled but the draft still carries its sales: %w",
				dayID, domainErrors.ErrConflict)
		}
		return nil, nil
	}

	result, err := o.lottery.Commit(ctx, dayID, model.CommitOptions{DeferredOverride: true})
	if err != nil {
		return nil, fmt.Errorf("commit lottery day %d: %w", dayID, err)
	}
	return result, nil
}

func (o *Orchestrator) revert(ctx context.Context, logger *slog.Logger, draftID string) {
	if _, err := o.drafts.RevertFinalizing(context.WithoutCancel(ctx), draftID); err != nil {
		if errors.Is(err, domainErrors.ErrConflict) {
			logger.Warn("draft left finalizing state elsewhere", slog.String("error", err.Error()))
			return
		}
		logger.Error("revert finalizing failed", slog.String("error", err.Error()))
		return
	}
	logger.Warn("finalize failed, draft returned to operator")
}
