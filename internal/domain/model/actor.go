package model

import "github.com/shopspring/decimal"

// Role is an operator role granted by the session collaborator.
type Role string

const (
	RoleClerk   Role = "clerk"
	RoleManager Role = "manager"
)

// Actor is the authenticated identity passed into every core operation.
type Actor struct {
	UserID  string
	StoreID string
	Role    Role
}

// Can reports whether the actor holds at least the required role.
func (a Actor) Can(required Role) bool {
	switch required {
	case RoleClerk:
		return a.Role == RoleClerk || a.Role == RoleManager
	case RoleManager:
		return a.Role == RoleManager
	}
	return false
}

// SettlementRequest is sent once to the settlement collaborator.
type SettlementRequest struct {
	DraftID     string
	StoreID     string
	ScopeID     string
	Kind        DraftKind
	Payload     DraftPayload
	ClosingCash decimal.Decimal
}

// Settlement identifies a posted shift/day settlement.
type Settlement struct {
	ID      string
	DraftID string
}
