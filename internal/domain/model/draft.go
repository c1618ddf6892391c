package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
)

// DraftKind tells which accounting period a draft closes.
type DraftKind string

const (
	DraftKindDayClose   DraftKind = "DAY_CLOSE"
	DraftKindShiftClose DraftKind = "SHIFT_CLOSE"
)

func (k DraftKind) Valid() bool {
	return k == DraftKindDayClose || k == DraftKindShiftClose
}

// DraftStatus describes draft lifecycle.
type DraftStatus string

const (
	DraftStatusInProgress DraftStatus = "IN_PROGRESS"
	DraftStatusFinalizing DraftStatus = "FINALIZING"
	DraftStatusFinalized  DraftStatus = "FINALIZED"
	DraftStatusExpired    DraftStatus = "EXPIRED"
)

// Terminal reports whether the draft can no longer change.
func (s DraftStatus) Terminal() bool {
	return s == DraftStatusFinalized || s == DraftStatusExpired
}

// StepMarker records the last wizard step reached. Navigation only.
type StepMarker string

const (
	StepMarkerNone    StepMarker = ""
	StepMarkerLottery StepMarker = "LOTTERY"
	StepMarkerReports StepMarker = "REPORTS"
	StepMarkerReview  StepMarker = "REVIEW"
)

func (m StepMarker) Valid() bool {
	switch m {
	case StepMarkerNone, StepMarkerLottery, StepMarkerReports, StepMarkerReview:
		return true
	}
	return false
}

// Draft is the persisted working document of one closing operation.
type Draft struct {
	ID           string
	StoreID      string
	ScopeID      string
	Kind         DraftKind
	Status       DraftStatus
	StepMarker   StepMarker
	Payload      DraftPayload
	Version      int64
	SettlementID string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EntryMethod tells how lottery numbers were captured.
type EntryMethod string

const (
	EntryMethodScan   EntryMethod = "SCAN"
	EntryMethodManual EntryMethod = "MANUAL"
)

// LotteryStep is the lottery part of the wizard payload.
type LotteryStep struct {
	EntryMethod  EntryMethod     `json:"entry_method"`
	AuthorizedBy string          `json:"authorized_by,omitempty"`
	PendingDayID *int64          `json:"pending_day_id,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	TicketsSold  int64           `json:"tickets_sold"`
	SalesTotal   decimal.Decimal `json:"sales_total"`
}

// ReportsStep holds POS aggregates entered on the reports step.
type ReportsStep struct {
	FuelSales        decimal.Decimal `json:"fuel_sales"`
	MerchandiseSales decimal.Decimal `json:"merchandise_sales"`
	CashSales        decimal.Decimal `json:"cash_sales"`
	CardSales        decimal.Decimal `json:"card_sales"`
}

// DraftPayload is merged shallowly: each top-level key is replaced as a whole.
type DraftPayload struct {
	Lottery     *LotteryStep     `json:"lottery,omitempty"`
	Reports     *ReportsStep     `json:"reports,omitempty"`
	ClosingCash *decimal.Decimal `json:"closing_cash,omitempty"`
}

// Merge returns p with every key present in partial replaced.
func (p DraftPayload) Merge(partial DraftPayload) DraftPayload {
	if partial.Lottery != nil {
		p.Lottery = partial.Lottery
	}
	if partial.Reports != nil {
		p.Reports = partial.Reports
	}
	if partial.ClosingCash != nil {
		p.ClosingCash = partial.ClosingCash
	}
	return p
}

// IsEmpty reports whether no key is set.
func (p DraftPayload) IsEmpty() bool {
	return p.Lottery == nil && p.Reports == nil && p.ClosingCash == nil
}

// Validate enforces the audit rules on the keys present.
func (p DraftPayload) Validate() error {
	var problems []string
	if l := p.Lottery; l != nil {
		switch l.EntryMethod {
		case EntryMethodScan:
		case EntryMethodManual:
			if l.AuthorizedBy == "" {
				problems = append(problems, "lottery: manual entry requires authorized_by")
			}
		case "":
			problems = append(problems, "lottery: entry_method is required")
		default:
			problems = append(problems, fmt.Sprintf("lottery: unknown entry_method %q", l.EntryMethod))
		}
		if l.TicketsSold < 0 || l.SalesTotal.IsNegative() {
			problems = append(problems, "lottery: totals must not be negative")
		}
	}
	if p.ClosingCash != nil && p.ClosingCash.IsNegative() {
		problems = append(problems, "closing_cash must not be negative")
	}
	if len(problems) > 0 {
		return domainErrors.NewValidationError(problems...)
	}
	return nil
}

// VersionConflict is returned, not raised, when a write names a stale version.
type VersionConflict struct {
	CurrentVersion  int64
	ExpectedVersion int64
}

// UpdateResult carries exactly one of Draft or Conflict.
type UpdateResult struct {
	Draft    *Draft
	Conflict *VersionConflict
}

// NextStatus checks a status transition. noop is true when the draft is
// already in the target state and nothing must be written.
func NextStatus(from, to DraftStatus) (noop bool, err error) {
	if from == to {
		switch to {
		case DraftStatusFinalized, DraftStatusExpired, DraftStatusInProgress:
			return true, nil
		}
	}

	allowed := false
	switch to {
	case DraftStatusFinalizing:
		allowed = from == DraftStatusInProgress
	case DraftStatusFinalized:
		allowed = from == DraftStatusInProgress || from == DraftStatusFinalizing
	case DraftStatusExpired:
		allowed = from == DraftStatusInProgress
	case DraftStatusInProgress:
		allowed = from == DraftStatusFinalizing
	}
	if !allowed {
		return false, fmt.Errorf("draft %s cannot move to %s: %w", from, to, domainErrors.ErrConflict)
	}
	return false, nil
}
