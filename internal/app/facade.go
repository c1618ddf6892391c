package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/pkg/auth"
	"github.com/polkiloo/shiftclose/internal/usecase"
)

type ClosingFacade struct {
	drafts     *usecase.DraftUseCase
	lottery    *usecase.LotteryUseCase
	settlement *usecase.SettlementUseCase
	tokens     auth.Strategy
}

func NewClosingFacade(drafts *usecase.DraftUseCase, lottery *usecase.LotteryUseCase, settlement *usecase.SettlementUseCase, tokens auth.Strategy) *ClosingFacade {
	return &ClosingFacade{drafts: drafts, lottery: lottery, settlement: settlement, tokens: tokens}
}

func (f *ClosingFacade) ParseToken(token string) (model.Actor, error) {
	return f.tokens.ParseToken(token)
}

func (f *ClosingFacade) IssueToken(actor model.Actor) (string, error) {
	return f.tokens.IssueToken(actor)
}

func (f *ClosingFacade) CreateDraft(ctx context.Context, actor model.Actor, scopeID string, kind model.DraftKind) (*model.Draft, bool, error) {
	return f.drafts.Create(ctx, actor, scopeID, kind)
}

func (f *ClosingFacade) ActiveDraft(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error) {
	return f.drafts.GetActive(ctx, actor, scopeID)
}

func (f *ClosingFacade) LatestDraft(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error) {
	return f.drafts.GetLatest(ctx, actor, scopeID)
}

func (f *ClosingFacade) Draft(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return f.drafts.Get(ctx, actor, draftID)
}

func (f *ClosingFacade) UpdateDraft(ctx context.Context, actor model.Actor, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error) {
	return f.drafts.Update(ctx, actor, draftID, partial, expectedVersion)
}

func (f *ClosingFacade) UpdateStepMarker(ctx context.Context, actor model.Actor, draftID string, marker model.StepMarker) (*model.Draft, error) {
	return f.drafts.UpdateStepMarker(ctx, actor, draftID, marker)
}

func (f *ClosingFacade) MarkFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return f.drafts.MarkFinalizing(ctx, actor, draftID)
}

func (f *ClosingFacade) RevertFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return f.drafts.RevertFinalizing(ctx, actor, draftID)
}

func (f *ClosingFacade) Finalize(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return f.drafts.Finalize(ctx, actor, draftID)
}

func (f *ClosingFacade) Expire(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error) {
	return f.drafts.Expire(ctx, actor, draftID)
}

func (f *ClosingFacade) Settle(ctx context.Context, actor model.Actor, draftID string, closingCash decimal.Decimal) (*model.Settlement, error) {
	return f.settlement.Settle(ctx, actor, draftID, closingCash)
}

func (f *ClosingFacade) StaleFinalizing(ctx context.Context, before time.Time, limit int) ([]model.Draft, error) {
	return f.drafts.StaleFinalizing(ctx, before, limit)
}

func (f *ClosingFacade) PrepareLottery(ctx context.Context, actor model.Actor, lines []model.PrepareLine) (*model.LotteryClosingAttempt, error) {
	return f.lottery.Prepare(ctx, actor, lines)
}

func (f *ClosingFacade) LotteryAttempt(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error) {
	return f.lottery.Attempt(ctx, actor, dayID)
}

func (f *ClosingFacade) CommitLottery(ctx context.Context, actor model.Actor, dayID int64, opts model.CommitOptions) (*model.LotteryCommitResult, error) {
	return f.lottery.Commit(ctx, actor, dayID, opts)
}

func (f *ClosingFacade) CancelLottery(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error) {
	return f.lottery.Cancel(ctx, actor, dayID)
}
