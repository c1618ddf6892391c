package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/app"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	pkgAuth "github.com/polkiloo/shiftclose/internal/pkg/auth"
	"github.com/polkiloo/shiftclose/internal/server/http/dto"
	"github.com/polkiloo/shiftclose/internal/server/http/router"
	testhelpers "github.com/polkiloo/shiftclose/internal/test"
	"github.com/polkiloo/shiftclose/internal/usecase"
)

type testServer struct {
	url     string
	drafts  *testhelpers.DraftRepositoryStub
	lottery *testhelpers.LotteryRepositoryStub
	gateway *testhelpers.SettlementGatewayStub
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ts := testServer{
		drafts:  testhelpers.NewDraftRepositoryStub(),
		lottery: &testhelpers.LotteryRepositoryStub{},
		gateway: &testhelpers.SettlementGatewayStub{},
	}
	inventory := testhelpers.PackInventoryStub{Items: map[string]model.Pack{
		"P1": {PackID: "P1", Status: model.PackStatusActivated, TicketCount: 150, TicketPrice: decimal.RequireFromString("5.00")},
	}}
	tokens := testhelpers.StrategyStub{ParseFn: func(token string) (model.Actor, error) {
		switch token {
		case "clerk":
			return testhelpers.ClerkActor, nil
		case "manager":
			return testhelpers.ManagerActor, nil
		}
		return model.Actor{}, pkgAuth.ErrInvalidToken
	}}
	facade := app.NewClosingFacade(
		usecase.NewDraftUseCase(ts.drafts, logger),
		usecase.NewLotteryUseCase(ts.lottery, inventory, usecase.LotteryOptions{PrepareTTL: time.Minute}, logger),
		usecase.NewSettlementUseCase(ts.drafts, ts.gateway, logger),
		tokens,
	)
	srv := httptest.NewServer(router.Setup(facade, logger))
	t.Cleanup(srv.Close)
	ts.url = srv.URL
	return ts
}

func (ts testServer) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader(stdin), &out, &errOut)
	base := []string{"--server", ts.url, "--token", "manager", "--scope", "shift-1", "--autosave-delay", "1h"}
	root.SetArgs(append(args, base...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeDraft(t *testing.T, out string) dto.DraftResponse {
	t.Helper()
	var d dto.DraftResponse
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode draft output %q: %v", out, err)
	}
	return d
}

func TestOpenAndStatus(t *testing.T) {
	ts := newTestServer(t)

	out, err := ts.run(t, "", "status")
	if err != nil || !strings.Contains(out, "no active draft for shift-1") {
		t.Fatalf("unexpected status output %q err=%v", out, err)
	}

	out, err = ts.run(t, "", "open")
	if err != nil || !strings.Contains(out, "IN_PROGRESS") || !strings.Contains(out, "shift-1") {
		t.Fatalf("unexpected open output %q err=%v", out, err)
	}

	out, err = ts.run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if d := decodeDraft(t, out); d.ScopeID != "shift-1" || d.Version != 1 {
		t.Fatalf("unexpected status %+v", d)
	}
}

func TestEditWritesStreamOnce(t *testing.T) {
	ts := newTestServer(t)
	stdin := "# counted at 22:00\nclosing_cash=812.40\nreports.fuel_sales=100\n\nreports.cash_sales=40\n"

	out, err := ts.run(t, stdin, "edit", "--json")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	d := decodeDraft(t, out)
	if d.Version != 2 {
		t.Fatalf("expected one coalesced write, got version %d", d.Version)
	}
	if ts.drafts.Updates != 1 {
		t.Fatalf("expected one store update, got %d", ts.drafts.Updates)
	}
	p := d.Payload
	if p.ClosingCash == nil || !p.ClosingCash.Equal(decimal.RequireFromString("812.40")) {
		t.Fatalf("unexpected closing cash %+v", p.ClosingCash)
	}
	if p.Reports == nil || !p.Reports.FuelSales.Equal(decimal.NewFromInt(100)) || !p.Reports.CashSales.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected both report fields, got %+v", p.Reports)
	}
}

func TestEditRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	if _, err := ts.run(t, "closing_cash=812.40\nmood=great\n", "edit"); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line error, got %v", err)
	}
	if ts.drafts.Updates != 0 {
		t.Fatal("rejected input must not be written")
	}
}

func TestParseAssignment(t *testing.T) {
	current := model.DraftPayload{Lottery: &model.LotteryStep{EntryMethod: model.EntryMethodScan, TicketsSold: 3}}

	partial, err := parseAssignment(current, "lottery.entry_method = manual")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if partial.Lottery == nil || partial.Lottery.EntryMethod != model.EntryMethodManual || partial.Lottery.TicketsSold != 3 {
		t.Fatalf("expected step rebuilt from current, got %+v", partial.Lottery)
	}

	for _, line := range []string{"closing_cash", "closing_cash=-1", "closing_cash=abc", "reports.tips=5", "lottery.tickets_sold=x", "other.key=1"} {
		if _, err := parseAssignment(current, line); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}

func TestReportsAndStep(t *testing.T) {
	ts := newTestServer(t)

	out, err := ts.run(t, "", "reports", "--fuel", "1200.50", "--cash", "300", "--json")
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if d := decodeDraft(t, out); d.Payload.Reports == nil || !d.Payload.Reports.FuelSales.Equal(decimal.RequireFromString("1200.50")) {
		t.Fatalf("unexpected reports %+v", d.Payload.Reports)
	}

	out, err = ts.run(t, "", "step", "review", "--json")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if d := decodeDraft(t, out); d.StepMarker != string(model.StepMarkerReview) || d.Version != 3 {
		t.Fatalf("unexpected step result %+v", d)
	}

	if _, err := ts.run(t, "", "step", "done"); err == nil {
		t.Fatal("expected unknown step error")
	}
}

func TestLotteryPrepareThenFinalize(t *testing.T) {
	ts := newTestServer(t)
	file := filepath.Join(t.TempDir(), "bins.yaml")
	content := `entry_method: scan
lines:
  - pack_id: P1
    starting_serial: "000"
    ending_serial: "045"
    unit_price: "2.00"
`
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	out, err := ts.run(t, "", "lottery", "prepare", "--file", file)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !strings.Contains(out, "90.00") || !strings.Contains(out, "PREPARED") {
		t.Fatalf("unexpected prepare output %q", out)
	}

	out, err = ts.run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	lottery := decodeDraft(t, out).Payload.Lottery
	if lottery == nil || lottery.PendingDayID == nil || *lottery.PendingDayID != 1 || lottery.EntryMethod != model.EntryMethodScan {
		t.Fatalf("expected pending lottery day in draft, got %+v", lottery)
	}

	out, err = ts.run(t, "", "finalize", "--cash", "500", "--json")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	var res finalizeOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode finalize output %q: %v", out, err)
	}
	if res.Draft.Status != string(model.DraftStatusFinalized) || res.SettlementID != "stl-1" {
		t.Fatalf("unexpected finalize result %+v", res)
	}
	if res.Lottery == nil || res.Lottery.ClosingsCreated != 1 || !res.Lottery.LotteryTotal.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("unexpected lottery result %+v", res.Lottery)
	}
	if len(ts.lottery.Commits) != 1 || ts.gateway.Submitted() != 1 {
		t.Fatalf("expected one commit and one settlement, got %v and %d", ts.lottery.Commits, ts.gateway.Submitted())
	}
}

func TestLotteryCancelClearsPendingDay(t *testing.T) {
	ts := newTestServer(t)
	stdin := "lines:\n  - pack_id: P1\n    starting_serial: \"010\"\n    ending_serial: \"020\"\n"
	if _, err := ts.run(t, stdin, "lottery", "prepare"); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	out, err := ts.run(t, "", "lottery", "cancel")
	if err != nil || !strings.Contains(out, "CANCELLED") {
		t.Fatalf("unexpected cancel output %q err=%v", out, err)
	}

	out, err = ts.run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	lottery := decodeDraft(t, out).Payload.Lottery
	if lottery == nil || lottery.PendingDayID != nil || lottery.TicketsSold != 0 || !lottery.SalesTotal.IsZero() {
		t.Fatalf("expected pending day and its sales cleared, got %+v", lottery)
	}

	if _, err := ts.run(t, "", "lottery", "show"); err == nil {
		t.Fatal("expected show without a pending day to ask for --day")
	}

	if _, err := ts.run(t, "", "finalize", "--cash", "100"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(ts.lottery.Commits) != 0 || ts.gateway.Submitted() != 1 {
		t.Fatalf("expected settlement without lottery commit, got %v and %d", ts.lottery.Commits, ts.gateway.Submitted())
	}
	settled := ts.gateway.Requests[0].Payload.Lottery
	if settled == nil || settled.TicketsSold != 0 || !settled.SalesTotal.IsZero() {
		t.Fatalf("cancelled lottery sales reached settlement: %+v", settled)
	}
}

func TestFinalizeTwiceSettlesOnce(t *testing.T) {
	ts := newTestServer(t)
	if _, err := ts.run(t, "", "open"); err != nil {
		t.Fatalf("open: %v", err)
	}

	var results [2]finalizeOutput
	for i := range results {
		out, err := ts.run(t, "", "finalize", "--cash", "500", "--json")
		if err != nil {
			t.Fatalf("finalize run %d: %v", i+1, err)
		}
		if err := json.Unmarshal([]byte(out), &results[i]); err != nil {
			t.Fatalf("decode finalize output %q: %v", out, err)
		}
	}

	if results[0].Draft.ID != results[1].Draft.ID || results[1].SettlementID != "stl-1" {
		t.Fatalf("expected the recorded result again, got %+v and %+v", results[0], results[1])
	}
	if ts.gateway.Submitted() != 1 {
		t.Fatalf("expected one settlement, got %d", ts.gateway.Submitted())
	}

	out, err := ts.run(t, "", "status")
	if err != nil || !strings.Contains(out, "no active draft") {
		t.Fatalf("finalize must not open a new draft, status %q err=%v", out, err)
	}
}

func TestFinalizeNeedsDraft(t *testing.T) {
	ts := newTestServer(t)
	if _, err := ts.run(t, "", "finalize", "--cash", "500"); err == nil || !strings.Contains(err.Error(), "no draft to finalize") {
		t.Fatalf("expected missing draft error, got %v", err)
	}

	if _, err := ts.run(t, "", "open"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := ts.run(t, "", "discard"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := ts.run(t, "", "finalize", "--cash", "500"); err == nil || !strings.Contains(err.Error(), "no draft to finalize") {
		t.Fatalf("expected discarded draft to be refused, got %v", err)
	}
	if ts.gateway.Submitted() != 0 {
		t.Fatalf("expected no settlement, got %d", ts.gateway.Submitted())
	}
}

func TestDecodeLotteryFileErrors(t *testing.T) {
	cases := []string{
		"lines: []\n",
		"lines:\n  - pack_id: P1\n    unit_price: cheap\n",
		"lines:\n  - pack: P1\n",
	}
	for _, c := range cases {
		if _, _, err := decodeLotteryFile(strings.NewReader(c)); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestDiscard(t *testing.T) {
	ts := newTestServer(t)

	out, err := ts.run(t, "", "discard")
	if err != nil || !strings.Contains(out, "no active draft") {
		t.Fatalf("unexpected discard output %q err=%v", out, err)
	}

	if _, err := ts.run(t, "", "open"); err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err = ts.run(t, "", "discard", "--json")
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if d := decodeDraft(t, out); d.Status != string(model.DraftStatusExpired) {
		t.Fatalf("unexpected discard result %+v", d)
	}
}

func TestTokenCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader(""), &out, &errOut)
	root.SetArgs([]string{"token", "--secret", "s3cret", "--user", "u-7", "--store", "store-9", "--role", "manager"})
	if err := root.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	actor, err := pkgAuth.NewJWTStrategy("s3cret", pkgAuth.Options{}).ParseToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if actor.UserID != "u-7" || actor.StoreID != "store-9" || actor.Role != model.RoleManager {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestCommandsRequireTokenAndScope(t *testing.T) {
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader(""), &out, &errOut)
	root.SetArgs([]string{"status", "--scope", "shift-1", "--token", ""})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}

	root = NewRootCommand(strings.NewReader(""), &out, &errOut)
	root.SetArgs([]string{"open", "--token", "manager"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "--scope") {
		t.Fatalf("expected scope error, got %v", err)
	}
}
