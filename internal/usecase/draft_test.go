package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/test"
)

var (
	clerk   = model.Actor{UserID: "clerk-1", StoreID: "store-1", Role: model.RoleClerk}
	manager = model.Actor{UserID: "mgr-1", StoreID: "store-1", Role: model.RoleManager}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDraftUseCase() (*DraftUseCase, *test.DraftRepositoryStub) {
	repo := test.NewDraftRepositoryStub()
	uc := NewDraftUseCase(repo, discardLogger())
	return uc, repo
}

func cashPayload(v string) model.DraftPayload {
	cash := decimal.RequireFromString(v)
	return model.DraftPayload{ClosingCash: &cash}
}

func TestDraftCreateIsIdempotentPerScope(t *testing.T) {
	uc, _ := newDraftUseCase()
	ctx := context.Background()

	first, created, err := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)
	if err != nil || !created {
		t.Fatalf("unexpected result: created=%v err=%v", created, err)
	}
	if first.Version != 1 || first.Status != model.DraftStatusInProgress {
		t.Fatalf("unexpected new draft: %+v", first)
	}

	second, created, err := uc.Create(ctx, manager, " shift-7 ", model.DraftKindShiftClose)
	if err != nil || created {
		t.Fatalf("expected existing draft, created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same draft id, got %s and %s", first.ID, second.ID)
	}

	other, created, err := uc.Create(ctx, model.Actor{UserID: "c", StoreID: "store-2", Role: model.RoleClerk}, "shift-7", model.DraftKindShiftClose)
	if err != nil || !created || other.ID == first.ID {
		t.Fatalf("expected separate draft for another store, got %+v created=%v err=%v", other, created, err)
	}
}

func TestDraftCreateValidation(t *testing.T) {
	uc, _ := newDraftUseCase()

	_, _, err := uc.Create(context.Background(), clerk, " ", "WEEK_CLOSE")
	var verr *domainErrors.ValidationError
	if !errors.As(err, &verr) || len(verr.Problems) != 2 {
		t.Fatalf("expected two validation problems, got %v", err)
	}

	if _, _, err := uc.Create(context.Background(), model.Actor{UserID: "x", StoreID: "store-1"}, "shift-7", model.DraftKindShiftClose); !errors.Is(err, domainErrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDraftGetActiveAbsent(t *testing.T) {
	uc, _ := newDraftUseCase()

	draft, err := uc.GetActive(context.Background(), clerk, "shift-1")
	if err != nil || draft != nil {
		t.Fatalf("expected absent draft, got %+v err=%v", draft, err)
	}

	repoErr := errors.New("db down")
	uc, repo := newDraftUseCase()
	repo.Err = repoErr
	if _, err := uc.GetActive(context.Background(), clerk, "shift-1"); !errors.Is(err, repoErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
}

func TestDraftGetLatest(t *testing.T) {
	uc, repo := newDraftUseCase()
	ctx := context.Background()

	if draft, err := uc.GetLatest(ctx, clerk, "shift-1"); err != nil || draft != nil {
		t.Fatalf("expected no draft, got %+v err=%v", draft, err)
	}

	first, _, err := uc.Create(ctx, clerk, "shift-1", model.DraftKindShiftClose)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := uc.Expire(ctx, manager, first.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	latest, err := uc.GetLatest(ctx, clerk, "shift-1")
	if err != nil || latest.ID != first.ID || latest.Status != model.DraftStatusExpired {
		t.Fatalf("expected the expired draft, got %+v err=%v", latest, err)
	}

	second, _, err := uc.Create(ctx, clerk, "shift-1", model.DraftKindShiftClose)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if latest, err = uc.GetLatest(ctx, clerk, "shift-1"); err != nil || latest.ID != second.ID {
		t.Fatalf("expected the newest draft %s, got %+v err=%v", second.ID, latest, err)
	}

	repoErr := errors.New("db down")
	repo.Err = repoErr
	if _, err := uc.GetLatest(ctx, clerk, "shift-1"); !errors.Is(err, repoErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
}

func TestDraftGetHidesOtherTenants(t *testing.T) {
	uc, _ := newDraftUseCase()
	ctx := context.Background()

	draft, _, err := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	intruder := model.Actor{UserID: "x", StoreID: "store-9", Role: model.RoleManager}
	if _, err := uc.Get(ctx, intruder, draft.ID); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := uc.Get(ctx, clerk, draft.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDraftUpdateVersioning(t *testing.T) {
	uc, _ := newDraftUseCase()
	ctx := context.Background()

	draft, _, _ := uc.Create(ctx, clerk, "day-3", model.DraftKindDayClose)
	lottery := model.DraftPayload{Lottery: &model.LotteryStep{
		EntryMethod: model.EntryMethodScan,
		TicketsSold: 45,
		SalesTotal:  decimal.RequireFromString("90.00"),
	}}

	res, err := uc.Update(ctx, clerk, draft.ID, lottery, 1)
	if err != nil || res.Conflict != nil || res.Draft.Version != 2 {
		t.Fatalf("unexpected first update: %+v err=%v", res, err)
	}

	res, err = uc.Update(ctx, clerk, draft.ID, cashPayload("500"), 2)
	if err != nil || res.Draft.Version != 3 {
		t.Fatalf("unexpected second update: %+v err=%v", res, err)
	}
	if res.Draft.Payload.Lottery == nil || res.Draft.Payload.Lottery.TicketsSold != 45 {
		t.Fatalf("lottery key lost after closing_cash update: %+v", res.Draft.Payload)
	}
	if !res.Draft.Payload.ClosingCash.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("closing cash not stored: %+v", res.Draft.Payload)
	}
}

func TestDraftUpdateStaleVersionIsRejected(t *testing.T) {
	uc, repo := newDraftUseCase()
	ctx := context.Background()

	draft, _, _ := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)
	if _, err := uc.Update(ctx, clerk, draft.ID, cashPayload("100"), 1); err != nil {
		t.Fatalf("setup update failed: %v", err)
	}

	res, err := uc.Update(ctx, clerk, draft.ID, cashPayload("999"), 1)
	if err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
	if res.Draft != nil || res.Conflict == nil || *res.Conflict != (model.VersionConflict{CurrentVersion: 2, ExpectedVersion: 1}) {
		t.Fatalf("unexpected result: %+v", res)
	}

	stored, _ := repo.Snapshot(draft.ID)
	if stored.Version != 2 || !stored.Payload.ClosingCash.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("rejected update changed the draft: %+v", stored)
	}
}

func TestDraftUpdateRejectsInvalidInput(t *testing.T) {
	uc, repo := newDraftUseCase()
	ctx := context.Background()
	draft, _, _ := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)

	manual := model.DraftPayload{Lottery: &model.LotteryStep{EntryMethod: model.EntryMethodManual}}
	if _, err := uc.Update(ctx, clerk, draft.ID, manual, 1); !errors.Is(err, domainErrors.ErrValidation) {
		t.Fatalf("expected validation error for manual entry without authorization, got %v", err)
	}
	if _, err := uc.Update(ctx, clerk, draft.ID, model.DraftPayload{}, 1); !errors.Is(err, domainErrors.ErrValidation) {
		t.Fatalf("expected validation error for empty payload, got %v", err)
	}
	if _, err := uc.Update(ctx, clerk, draft.ID, cashPayload("1"), 0); !errors.Is(err, domainErrors.ErrValidation) {
		t.Fatalf("expected validation error for version 0, got %v", err)
	}
	if repo.Updates != 0 {
		t.Fatalf("invalid input reached the repository %d times", repo.Updates)
	}
}

func TestDraftTerminalStates(t *testing.T) {
	uc, _ := newDraftUseCase()
	ctx := context.Background()
	draft, _, _ := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)

	if _, err := uc.Finalize(ctx, clerk, draft.ID); !errors.Is(err, domainErrors.ErrForbidden) {
		t.Fatalf("expected clerk to be forbidden, got %v", err)
	}

	marked, err := uc.MarkFinalizing(ctx, clerk, draft.ID)
	if err != nil || marked.Status != model.DraftStatusFinalizing {
		t.Fatalf("unexpected mark result: %+v err=%v", marked, err)
	}
	if _, err := uc.MarkFinalizing(ctx, clerk, draft.ID); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected second finalizer to conflict, got %v", err)
	}

	finalized, err := uc.Finalize(ctx, manager, draft.ID)
	if err != nil || finalized.Status != model.DraftStatusFinalized {
		t.Fatalf("unexpected finalize result: %+v err=%v", finalized, err)
	}
	again, err := uc.Finalize(ctx, manager, draft.ID)
	if err != nil || again.Version != finalized.Version {
		t.Fatalf("repeated finalize must be a no-op success, got %+v err=%v", again, err)
	}

	if _, err := uc.Update(ctx, clerk, draft.ID, cashPayload("1"), finalized.Version); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict updating finalized draft, got %v", err)
	}
	if _, err := uc.Expire(ctx, manager, draft.ID); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict expiring finalized draft, got %v", err)
	}
	if _, err := uc.UpdateStepMarker(ctx, clerk, draft.ID, model.StepMarkerReview); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict moving step of finalized draft, got %v", err)
	}

	next, created, err := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)
	if err != nil || !created || next.ID == draft.ID {
		t.Fatalf("expected a fresh draft after finalize, got %+v created=%v err=%v", next, created, err)
	}
}

func TestDraftExpireAndRevert(t *testing.T) {
	uc, _ := newDraftUseCase()
	ctx := context.Background()
	draft, _, _ := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)

	if _, err := uc.MarkFinalizing(ctx, clerk, draft.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	reverted, err := uc.RevertFinalizing(ctx, clerk, draft.ID)
	if err != nil || reverted.Status != model.DraftStatusInProgress {
		t.Fatalf("unexpected revert: %+v err=%v", reverted, err)
	}

	expired, err := uc.Expire(ctx, manager, draft.ID)
	if err != nil || expired.Status != model.DraftStatusExpired {
		t.Fatalf("unexpected expire: %+v err=%v", expired, err)
	}
	if _, err := uc.Expire(ctx, manager, draft.ID); err != nil {
		t.Fatalf("repeated expire must succeed, got %v", err)
	}
	if _, err := uc.Finalize(ctx, manager, draft.ID); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict finalizing expired draft, got %v", err)
	}
}

func TestDraftStepMarker(t *testing.T) {
	uc, _ := newDraftUseCase()
	ctx := context.Background()
	draft, _, _ := uc.Create(ctx, clerk, "shift-7", model.DraftKindShiftClose)

	updated, err := uc.UpdateStepMarker(ctx, clerk, draft.ID, model.StepMarkerLottery)
	if err != nil || updated.StepMarker != model.StepMarkerLottery || updated.Version != 2 {
		t.Fatalf("unexpected step update: %+v err=%v", updated, err)
	}
	if _, err := uc.UpdateStepMarker(ctx, clerk, draft.ID, "PAYMENT"); !errors.Is(err, domainErrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
