package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// PrepareLineRequest is one scanned bin.
type PrepareLineRequest struct {
	PackID         string           `json:"pack_id"`
	StartingSerial string           `json:"starting_serial"`
	EndingSerial   string           `json:"ending_serial"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	Outcome        string           `json:"outcome,omitempty"`
}

// PrepareRequest lists every bin of the lottery close.
type PrepareRequest struct {
	Lines []PrepareLineRequest `json:"lines"`
}

func (r PrepareRequest) Model() []model.PrepareLine {
	lines := make([]model.PrepareLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, model.PrepareLine{
			PackID:         l.PackID,
			StartingSerial: l.StartingSerial,
			EndingSerial:   l.EndingSerial,
			UnitPrice:      l.UnitPrice,
			Outcome:        model.PackOutcome(l.Outcome),
		})
	}
	return lines
}

func NewPrepareRequest(lines []model.PrepareLine) PrepareRequest {
	req := PrepareRequest{Lines: make([]PrepareLineRequest, 0, len(lines))}
	for _, l := range lines {
		req.Lines = append(req.Lines, PrepareLineRequest{
			PackID:         l.PackID,
			StartingSerial: l.StartingSerial,
			EndingSerial:   l.EndingSerial,
			UnitPrice:      l.UnitPrice,
			Outcome:        string(l.Outcome),
		})
	}
	return req
}

// AttemptResponse is the wire form of a lottery closing attempt.
type AttemptResponse struct {
	ID              int64                  `json:"id"`
	DayID           int64                  `json:"day_id"`
	Phase           string                 `json:"phase"`
	Lines           []model.SettlementLine `json:"lines"`
	TicketsSold     int64                  `json:"tickets_sold"`
	LotteryTotal    decimal.Decimal        `json:"lottery_total"`
	PreparedBy      string                 `json:"prepared_by,omitempty"`
	ExpiresAt       time.Time              `json:"expires_at"`
	ClosingsCreated int                    `json:"closings_created,omitempty"`
	NextDayID       int64                  `json:"next_day_id,omitempty"`
}

func NewAttemptResponse(a *model.LotteryClosingAttempt) AttemptResponse {
	lines := a.Lines
	if lines == nil {
		lines = []model.SettlementLine{}
	}
	return AttemptResponse{
		ID:              a.ID,
		DayID:           a.DayID,
		Phase:           string(a.Phase),
		Lines:           lines,
		TicketsSold:     a.TicketsSold,
		LotteryTotal:    a.LotteryTotal,
		PreparedBy:      a.PreparedBy,
		ExpiresAt:       a.ExpiresAt,
		ClosingsCreated: a.ClosingsCreated,
		NextDayID:       a.NextDayID,
	}
}

func (r AttemptResponse) Model() *model.LotteryClosingAttempt {
	return &model.LotteryClosingAttempt{
		ID:              r.ID,
		DayID:           r.DayID,
		Phase:           model.LotteryPhase(r.Phase),
		Lines:           r.Lines,
		TicketsSold:     r.TicketsSold,
		LotteryTotal:    r.LotteryTotal,
		PreparedBy:      r.PreparedBy,
		ExpiresAt:       r.ExpiresAt,
		ClosingsCreated: r.ClosingsCreated,
		NextDayID:       r.NextDayID,
	}
}

// CommitRequest carries the deferred close override.
type CommitRequest struct {
	DeferredOverride bool `json:"deferred_override"`
}

// CommitResponse reports the committed lottery day.
type CommitResponse struct {
	DayID           int64           `json:"day_id"`
	ClosingsCreated int             `json:"closings_created"`
	LotteryTotal    decimal.Decimal `json:"lottery_total"`
	NextDayID       int64           `json:"next_day_id"`
}

func NewCommitResponse(r *model.LotteryCommitResult) CommitResponse {
	return CommitResponse{
		DayID:           r.DayID,
		ClosingsCreated: r.ClosingsCreated,
		LotteryTotal:    r.LotteryTotal,
		NextDayID:       r.NextDayID,
	}
}

func (r CommitResponse) Model() *model.LotteryCommitResult {
	return &model.LotteryCommitResult{
		DayID:           r.DayID,
		ClosingsCreated: r.ClosingsCreated,
		LotteryTotal:    r.LotteryTotal,
		NextDayID:       r.NextDayID,
	}
}
