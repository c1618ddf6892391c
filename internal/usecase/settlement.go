package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/domain/repository"
)

// SettlementGateway posts a closing to the external settlement system.
type SettlementGateway interface {
	Submit(ctx context.Context, req model.SettlementRequest) (*model.Settlement, error)
}

// SettlementUseCase performs the shift/day settlement write of a finalizing draft.
type SettlementUseCase struct {
	drafts  repository.DraftRepository
	gateway SettlementGateway
	logger  *slog.Logger
}

// NewSettlementUseCase constructs SettlementUseCase.
func NewSettlementUseCase(drafts repository.DraftRepository, gateway SettlementGateway, logger *slog.Logger) *SettlementUseCase {
	return &SettlementUseCase{drafts: drafts, gateway: gateway, logger: logger}
}

// Settle submits the draft once. A draft that already carries a settlement id
// returns it without calling the gateway again.
func (u *SettlementUseCase) Settle(ctx context.Context, actor model.Actor, draftID string, closingCash decimal.Decimal) (*model.Settlement, error) {
	if err := authorize(actor, model.RoleManager); err != nil {
		return nil, err
	}
	if closingCash.IsNegative() {
		return nil, domainErrors.NewValidationError("closing_cash must not be negative")
	}

	draft, err := u.drafts.GetByID(ctx, actor.StoreID, draftID)
	if err != nil {
		return nil, err
	}
	if draft.SettlementID != "" {
		return &model.Settlement{ID: draft.SettlementID, DraftID: draft.ID}, nil
	}
	if draft.Status != model.DraftStatusFinalizing {
		return nil, fmt.Errorf("draft %s is %s: %w", draftID, draft.Status, domainErrors.ErrConflict)
	}

	settlement, err := u.gateway.Submit(ctx, model.SettlementRequest{
		DraftID:     draft.ID,
		StoreID:     draft.StoreID,
		ScopeID:     draft.ScopeID,
		Kind:        draft.Kind,
		Payload:     draft.Payload,
		ClosingCash: closingCash,
	})
	if err != nil {
		return nil, err
	}

	if _, err := u.drafts.RecordSettlement(ctx, actor.StoreID, draftID, settlement.ID); err != nil {
		return nil, err
	}
	u.logger.Info("draft settled",
		slog.String("draft_id", draftID),
		slog.String("settlement_id", settlement.ID),
		slog.String("closing_cash", closingCash.StringFixed(2)),
	)
	return settlement, nil
}
