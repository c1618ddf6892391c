package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	testhelpers "github.com/polkiloo/shiftclose/internal/test"
	"github.com/polkiloo/shiftclose/internal/usecase"
)

type facadeDeps struct {
	drafts  *testhelpers.DraftRepositoryStub
	lottery *testhelpers.LotteryRepositoryStub
	gateway *testhelpers.SettlementGatewayStub
}

func newFacade() (*ClosingFacade, facadeDeps) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	deps := facadeDeps{
		drafts:  testhelpers.NewDraftRepositoryStub(),
		lottery: &testhelpers.LotteryRepositoryStub{},
		gateway: &testhelpers.SettlementGatewayStub{},
	}
	inventory := testhelpers.PackInventoryStub{Items: map[string]model.Pack{
		"P1": {PackID: "P1", Status: model.PackStatusActivated, TicketCount: 150, TicketPrice: decimal.RequireFromString("2.00")},
	}}
	strategy := testhelpers.StrategyStub{ParseFn: func(string) (model.Actor, error) { return testhelpers.ClerkActor, nil }}

	facade := NewClosingFacade(
		usecase.NewDraftUseCase(deps.drafts, logger),
		usecase.NewLotteryUseCase(deps.lottery, inventory, usecase.LotteryOptions{PrepareTTL: time.Minute}, logger),
		usecase.NewSettlementUseCase(deps.drafts, deps.gateway, logger),
		strategy,
	)
	return facade, deps
}

func TestClosingFacadeTokens(t *testing.T) {
	facade, _ := newFacade()
	actor, err := facade.ParseToken("anything")
	if err != nil {
		t.Fatalf("parse token returned error: %v", err)
	}
	if actor != testhelpers.ClerkActor {
		t.Fatalf("unexpected actor %+v", actor)
	}
	token, err := facade.IssueToken(testhelpers.ManagerActor)
	if err != nil || token != "token" {
		t.Fatalf("unexpected token %q err=%v", token, err)
	}
}

func TestClosingFacadeDraftLifecycle(t *testing.T) {
	facade, deps := newFacade()
	ctx := context.Background()
	clerk, manager := testhelpers.ClerkActor, testhelpers.ManagerActor

	draft, created, err := facade.CreateDraft(ctx, clerk, "shift-7", model.DraftKindShiftClose)
	if err != nil || !created {
		t.Fatalf("unexpected create result: created=%v err=%v", created, err)
	}

	active, err := facade.ActiveDraft(ctx, clerk, "shift-7")
	if err != nil || active == nil || active.ID != draft.ID {
		t.Fatalf("expected active draft, got %+v err=%v", active, err)
	}

	cash := decimal.RequireFromString("100.00")
	result, err := facade.UpdateDraft(ctx, clerk, draft.ID, model.DraftPayload{ClosingCash: &cash}, 1)
	if err != nil || result.Draft == nil || result.Draft.Version != 2 {
		t.Fatalf("unexpected update result: %+v err=%v", result, err)
	}

	if _, err := facade.UpdateStepMarker(ctx, clerk, draft.ID, model.StepMarkerReview); err != nil {
		t.Fatalf("step marker failed: %v", err)
	}
	if _, err := facade.MarkFinalizing(ctx, clerk, draft.ID); err != nil {
		t.Fatalf("mark finalizing failed: %v", err)
	}
	if _, err := facade.RevertFinalizing(ctx, clerk, draft.ID); err != nil {
		t.Fatalf("revert finalizing failed: %v", err)
	}
	if _, err := facade.MarkFinalizing(ctx, clerk, draft.ID); err != nil {
		t.Fatalf("mark finalizing failed: %v", err)
	}

	settlement, err := facade.Settle(ctx, manager, draft.ID, cash)
	if err != nil || settlement.ID != "stl-1" {
		t.Fatalf("unexpected settlement %+v err=%v", settlement, err)
	}

	finalized, err := facade.Finalize(ctx, manager, draft.ID)
	if err != nil || finalized.Status != model.DraftStatusFinalized {
		t.Fatalf("unexpected finalize result %+v err=%v", finalized, err)
	}

	got, err := facade.Draft(ctx, clerk, draft.ID)
	if err != nil || got.SettlementID != "stl-1" {
		t.Fatalf("unexpected draft %+v err=%v", got, err)
	}
	if deps.gateway.Submitted() != 1 {
		t.Fatalf("expected one settlement, got %d", deps.gateway.Submitted())
	}
}

func TestClosingFacadeExpireAndStale(t *testing.T) {
	facade, deps := newFacade()
	ctx := context.Background()

	draft, _, err := facade.CreateDraft(ctx, testhelpers.ClerkActor, "day-1", model.DraftKindDayClose)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := facade.Expire(ctx, testhelpers.ClerkActor, draft.ID); !errors.Is(err, domainErrors.ErrForbidden) {
		t.Fatalf("expected clerk expire to be forbidden, got %v", err)
	}
	expired, err := facade.Expire(ctx, testhelpers.ManagerActor, draft.ID)
	if err != nil || expired.Status != model.DraftStatusExpired {
		t.Fatalf("unexpected expire result %+v err=%v", expired, err)
	}

	stuck := *testhelpers.StubDraft(testhelpers.ClerkActor, "stuck")
	stuck.Status = model.DraftStatusFinalizing
	deps.drafts.Put(stuck)
	stale, err := facade.StaleFinalizing(ctx, time.Now(), 10)
	if err != nil || len(stale) != 1 || stale[0].ID != "stuck" {
		t.Fatalf("unexpected stale drafts %+v err=%v", stale, err)
	}
}

func TestClosingFacadeLottery(t *testing.T) {
	facade, deps := newFacade()
	ctx := context.Background()

	attempt, err := facade.PrepareLottery(ctx, testhelpers.ClerkActor, []model.PrepareLine{{PackID: "P1", StartingSerial: "000", EndingSerial: "045"}})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if !attempt.LotteryTotal.Equal(decimal.RequireFromString("90")) {
		t.Fatalf("unexpected total %s", attempt.LotteryTotal)
	}

	latest, err := facade.LotteryAttempt(ctx, testhelpers.ClerkActor, attempt.DayID)
	if err != nil || latest.ID != attempt.ID {
		t.Fatalf("unexpected attempt %+v err=%v", latest, err)
	}

	result, err := facade.CommitLottery(ctx, testhelpers.ManagerActor, attempt.DayID, model.CommitOptions{})
	if err != nil || result.ClosingsCreated != 1 {
		t.Fatalf("unexpected commit %+v err=%v", result, err)
	}
	if len(deps.lottery.Commits) != 1 {
		t.Fatalf("expected one commit, got %d", len(deps.lottery.Commits))
	}

	cancelled, err := facade.CancelLottery(ctx, testhelpers.ManagerActor, attempt.DayID)
	if err != nil || cancelled.Phase != model.LotteryPhaseCancelled {
		t.Fatalf("unexpected cancel %+v err=%v", cancelled, err)
	}
}
