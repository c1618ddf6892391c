package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
)

func TestDraftStatusValues(t *testing.T) {
	cases := []struct {
		got   DraftStatus
		value string
	}{
		{DraftStatusInProgress, "IN_PROGRESS"},
		{DraftStatusFinalizing, "FINALIZING"},
		{DraftStatusFinalized, "FINALIZED"},
		{DraftStatusExpired, "EXPIRED"},
	}
	for _, tc := range cases {
		if string(tc.got) != tc.value {
			t.Fatalf("expected %s, got %s", tc.value, tc.got)
		}
	}
	if !DraftStatusFinalized.Terminal() || !DraftStatusExpired.Terminal() || DraftStatusFinalizing.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
}

func TestKindAndMarkerValidation(t *testing.T) {
	if !DraftKindDayClose.Valid() || !DraftKindShiftClose.Valid() || DraftKind("WEEK_CLOSE").Valid() {
		t.Fatal("unexpected kind validation")
	}
	if !StepMarkerNone.Valid() || !StepMarkerReview.Valid() || StepMarker("DONE").Valid() {
		t.Fatal("unexpected marker validation")
	}
}

func TestPayloadMergeIsShallowPerKey(t *testing.T) {
	cash := decimal.RequireFromString("500")
	stored := DraftPayload{Lottery: &LotteryStep{EntryMethod: EntryMethodScan, TicketsSold: 45}}

	merged := stored.Merge(DraftPayload{ClosingCash: &cash})
	if merged.Lottery == nil || merged.Lottery.TicketsSold != 45 {
		t.Fatalf("expected lottery to be preserved, got %+v", merged.Lottery)
	}
	if merged.ClosingCash == nil || !merged.ClosingCash.Equal(cash) {
		t.Fatalf("expected closing cash to be added, got %v", merged.ClosingCash)
	}

	replaced := merged.Merge(DraftPayload{Lottery: &LotteryStep{EntryMethod: EntryMethodManual, AuthorizedBy: "mgr"}})
	if replaced.Lottery.TicketsSold != 0 || replaced.Lottery.EntryMethod != EntryMethodManual {
		t.Fatalf("expected lottery to be replaced wholesale, got %+v", replaced.Lottery)
	}
	if stored.ClosingCash != nil {
		t.Fatal("merge must not mutate the receiver")
	}
}

func TestPayloadJSONOmitsAbsentKeys(t *testing.T) {
	cash := decimal.RequireFromString("500")
	raw, err := json.Marshal(DraftPayload{ClosingCash: &cash})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"closing_cash":"500"}` {
		t.Fatalf("unexpected payload json %s", raw)
	}
	if !(DraftPayload{}).IsEmpty() {
		t.Fatal("expected empty payload")
	}
}

func TestPayloadValidate(t *testing.T) {
	negative := decimal.NewFromInt(-1)
	cases := []struct {
		name    string
		payload DraftPayload
		wantErr bool
	}{
		{name: "empty", payload: DraftPayload{}},
		{name: "scan", payload: DraftPayload{Lottery: &LotteryStep{EntryMethod: EntryMethodScan}}},
		{name: "manual with authorizer", payload: DraftPayload{Lottery: &LotteryStep{EntryMethod: EntryMethodManual, AuthorizedBy: "mgr-1"}}},
		{name: "manual without authorizer", payload: DraftPayload{Lottery: &LotteryStep{EntryMethod: EntryMethodManual}}, wantErr: true},
		{name: "missing entry method", payload: DraftPayload{Lottery: &LotteryStep{}}, wantErr: true},
		{name: "unknown entry method", payload: DraftPayload{Lottery: &LotteryStep{EntryMethod: "VOICE"}}, wantErr: true},
		{name: "negative cash", payload: DraftPayload{ClosingCash: &negative}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr && !errors.Is(err, domainErrors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	cases := []struct {
		from, to DraftStatus
		noop     bool
		conflict bool
	}{
		{DraftStatusInProgress, DraftStatusFinalizing, false, false},
		{DraftStatusFinalizing, DraftStatusFinalizing, false, true},
		{DraftStatusInProgress, DraftStatusFinalized, false, false},
		{DraftStatusFinalizing, DraftStatusFinalized, false, false},
		{DraftStatusFinalized, DraftStatusFinalized, true, false},
		{DraftStatusExpired, DraftStatusFinalized, false, true},
		{DraftStatusInProgress, DraftStatusExpired, false, false},
		{DraftStatusExpired, DraftStatusExpired, true, false},
		{DraftStatusFinalizing, DraftStatusExpired, false, true},
		{DraftStatusFinalized, DraftStatusExpired, false, true},
		{DraftStatusFinalizing, DraftStatusInProgress, false, false},
		{DraftStatusInProgress, DraftStatusInProgress, true, false},
		{DraftStatusFinalized, DraftStatusInProgress, false, true},
	}
	for _, tc := range cases {
		noop, err := NextStatus(tc.from, tc.to)
		if tc.conflict != errors.Is(err, domainErrors.ErrConflict) {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if noop != tc.noop {
			t.Fatalf("%s -> %s: expected noop=%v", tc.from, tc.to, tc.noop)
		}
	}
}

func TestAttemptLapsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	attempt := &LotteryClosingAttempt{Phase: LotteryPhasePrepared, ExpiresAt: now.Add(time.Minute)}
	if attempt.Lapsed(now) {
		t.Fatal("attempt should still be valid")
	}
	if !attempt.Lapsed(now.Add(time.Minute)) {
		t.Fatal("attempt should lapse at expires_at")
	}
	attempt.Phase = LotteryPhaseCommitted
	if attempt.Lapsed(now.Add(time.Hour)) {
		t.Fatal("committed attempt never lapses")
	}
}

func TestActorCan(t *testing.T) {
	clerk := Actor{Role: RoleClerk}
	manager := Actor{Role: RoleManager}
	if !clerk.Can(RoleClerk) || clerk.Can(RoleManager) {
		t.Fatal("unexpected clerk permissions")
	}
	if !manager.Can(RoleClerk) || !manager.Can(RoleManager) {
		t.Fatal("manager should hold clerk permissions")
	}
	if (Actor{}).Can(RoleClerk) {
		t.Fatal("anonymous actor has no role")
	}
}
