package handlers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/server/http/middleware"
)

// DraftFacade describes the versioned draft store exposed via HTTP.
type DraftFacade interface {
	CreateDraft(ctx context.Context, actor model.Actor, scopeID string, kind model.DraftKind) (*model.Draft, bool, error)
	ActiveDraft(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error)
	LatestDraft(ctx context.Context, actor model.Actor, scopeID string) (*model.Draft, error)
	Draft(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	UpdateDraft(ctx context.Context, actor model.Actor, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error)
	UpdateStepMarker(ctx context.Context, actor model.Actor, draftID string, marker model.StepMarker) (*model.Draft, error)
	MarkFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	RevertFinalizing(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	Finalize(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	Expire(ctx context.Context, actor model.Actor, draftID string) (*model.Draft, error)
	Settle(ctx context.Context, actor model.Actor, draftID string, closingCash decimal.Decimal) (*model.Settlement, error)
}

// LotteryFacade provides the two-phase lottery close.
type LotteryFacade interface {
	PrepareLottery(ctx context.Context, actor model.Actor, lines []model.PrepareLine) (*model.LotteryClosingAttempt, error)
	LotteryAttempt(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error)
	CommitLottery(ctx context.Context, actor model.Actor, dayID int64, opts model.CommitOptions) (*model.LotteryCommitResult, error)
	CancelLottery(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error)
}

// ClosingFacade aggregates the full set of operations used across handlers.
type ClosingFacade interface {
	middleware.TokenParser
	DraftFacade
	LotteryFacade
}
