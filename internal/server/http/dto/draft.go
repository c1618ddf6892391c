package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// CreateDraftRequest opens or resumes the draft of a scope.
type CreateDraftRequest struct {
	ScopeID string `json:"scope_id"`
	Kind    string `json:"kind"`
}

// UpdateDraftRequest carries a partial payload written at an expected version.
type UpdateDraftRequest struct {
	ExpectedVersion int64              `json:"expected_version"`
	Payload         model.DraftPayload `json:"payload"`
}

// StepMarkerRequest moves the wizard position.
type StepMarkerRequest struct {
	StepMarker string `json:"step_marker"`
}

// SettleRequest submits the counted closing cash.
type SettleRequest struct {
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

// DraftResponse is the wire form of a closing draft.
type DraftResponse struct {
	ID           string             `json:"id"`
	StoreID      string             `json:"store_id"`
	ScopeID      string             `json:"scope_id"`
	Kind         string             `json:"kind"`
	Status       string             `json:"status"`
	StepMarker   string             `json:"step_marker,omitempty"`
	Payload      model.DraftPayload `json:"payload"`
	Version      int64              `json:"version"`
	SettlementID string             `json:"settlement_id,omitempty"`
	CreatedBy    string             `json:"created_by"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func NewDraftResponse(d *model.Draft) DraftResponse {
	return DraftResponse{
		ID:           d.ID,
		StoreID:      d.StoreID,
		ScopeID:      d.ScopeID,
		Kind:         string(d.Kind),
		Status:       string(d.Status),
		StepMarker:   string(d.StepMarker),
		Payload:      d.Payload,
		Version:      d.Version,
		SettlementID: d.SettlementID,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (r DraftResponse) Model() *model.Draft {
	return &model.Draft{
		ID:           r.ID,
		StoreID:      r.StoreID,
		ScopeID:      r.ScopeID,
		Kind:         model.DraftKind(r.Kind),
		Status:       model.DraftStatus(r.Status),
		StepMarker:   model.StepMarker(r.StepMarker),
		Payload:      r.Payload,
		Version:      r.Version,
		SettlementID: r.SettlementID,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// SettlementResponse identifies the posted settlement.
type SettlementResponse struct {
	SettlementID string `json:"settlement_id"`
	DraftID      string `json:"draft_id"`
}
