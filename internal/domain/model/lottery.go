package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PackStatus is the inventory state of a ticket pack.
type PackStatus string

const (
	PackStatusReceived  PackStatus = "RECEIVED"
	PackStatusActivated PackStatus = "ACTIVATED"
	PackStatusDepleted  PackStatus = "DEPLETED"
	PackStatusReturned  PackStatus = "RETURNED"
)

// Pack is a read-only view of a pack owned by the inventory collaborator.
type Pack struct {
	PackID        string
	Game          string
	Status        PackStatus
	TicketCount   int
	CurrentSerial int
	TicketPrice   decimal.Decimal
}

// PackOutcome is what happened to a pack during the day.
type PackOutcome string

const (
	PackOutcomeActive   PackOutcome = "ACTIVE"
	PackOutcomeDepleted PackOutcome = "DEPLETED"
	PackOutcomeReturned PackOutcome = "RETURNED"
)

// PrepareLine is one scanned bin as submitted by the operator.
type PrepareLine struct {
	PackID         string           `validate:"required,max=64"`
	StartingSerial string           `validate:"required,number,max=6"`
	EndingSerial   string           `validate:"required,number,max=6"`
	UnitPrice      *decimal.Decimal `validate:"-"`
	Outcome        PackOutcome      `validate:"omitempty,oneof=ACTIVE DEPLETED RETURNED"`
}

// SettlementLine is a priced line frozen at prepare time.
type SettlementLine struct {
	PackID         string          `json:"pack_id"`
	StartingSerial string          `json:"starting_serial"`
	EndingSerial   string          `json:"ending_serial"`
	TicketsSold    int64           `json:"tickets_sold"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	SalesAmount    decimal.Decimal `json:"sales_amount"`
	Outcome        PackOutcome     `json:"outcome"`
}

type LotteryDayStatus string

const (
	LotteryDayOpen   LotteryDayStatus = "OPEN"
	LotteryDayClosed LotteryDayStatus = "CLOSED"
)

// LotteryDay is a lottery business day of one store.
type LotteryDay struct {
	ID           int64
	StoreID      string
	BusinessDate time.Time
	Status       LotteryDayStatus
}

// LotteryPhase is the two-phase state of a closing attempt.
type LotteryPhase string

const (
	LotteryPhasePrepared  LotteryPhase = "PREPARED"
	LotteryPhaseCommitted LotteryPhase = "COMMITTED"
	LotteryPhaseCancelled LotteryPhase = "CANCELLED"
	LotteryPhaseExpired   LotteryPhase = "EXPIRED"
)

// LotteryClosingAttempt records one prepare and its outcome.
type LotteryClosingAttempt struct {
	ID              int64
	DayID           int64
	StoreID         string
	Phase           LotteryPhase
	Lines           []SettlementLine
	TicketsSold     int64
	LotteryTotal    decimal.Decimal
	PreparedBy      string
	ExpiresAt       time.Time
	ClosingsCreated int
	NextDayID       int64
	CreatedAt       time.Time
}

// Lapsed reports whether a prepared attempt has passed its validity window.
func (a *LotteryClosingAttempt) Lapsed(now time.Time) bool {
	return a.Phase == LotteryPhasePrepared && !now.Before(a.ExpiresAt)
}

// CommitResult rebuilds the commit outcome stored on a committed attempt.
func (a *LotteryClosingAttempt) CommitResult() *LotteryCommitResult {
	return &LotteryCommitResult{
		DayID:           a.DayID,
		ClosingsCreated: a.ClosingsCreated,
		LotteryTotal:    a.LotteryTotal,
		NextDayID:       a.NextDayID,
	}
}

// LotteryCommitResult is returned by a successful (or repeated) commit.
type LotteryCommitResult struct {
	DayID           int64
	ClosingsCreated int
	LotteryTotal    decimal.Decimal
	NextDayID       int64
}

// CommitOptions carries the deferred-close override used by day-close finalize.
type CommitOptions struct {
	DeferredOverride bool
}
