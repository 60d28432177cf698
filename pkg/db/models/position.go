package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a CDP.
type PositionStatus string

const (
	StatusOpen      PositionStatus = "open"
	StatusInsolvent PositionStatus = "insolvent"
	StatusFrozen    PositionStatus = "frozen"
	StatusClosed    PositionStatus = "closed"
)

// StatusFromCode maps the on-chain status discriminator to a PositionStatus.
func StatusFromCode(code int) (PositionStatus, bool) {
	switch code {
	case 0:
		return StatusOpen, true
	case 1:
		return StatusInsolvent, true
	case 2:
		return StatusFrozen, true
	case 3:
		return StatusClosed, true
	default:
		return "", false
	}
}

// CanTransitionTo enforces the only legal status edges:
// Open→Insolvent, Open/Insolvent→Frozen, Frozen→Closed.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusInsolvent || next == StatusFrozen
	case StatusInsolvent:
		return next == StatusFrozen
	case StatusFrozen:
		return next == StatusClosed
	default:
		return false
	}
}

// Position is the canonical record of a collateralized debt position.
// One live row per (asset, owner); never deleted, soft-closed via status.
type Position struct {
	ID              int64
	OwnerAddress    string
	Asset           string
	Collateral      decimal.Decimal
	Debt            decimal.Decimal
	AccruedInterest decimal.Decimal
	InterestPaid    decimal.Decimal
	LastInterest    time.Time
	Status          PositionStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RatioBps returns the position's collateralization ratio in basis points:
// collateral value over total debt value, both priced in the common unit.
// Returns false for positions with no debt, which have no meaningful ratio.
func (p *Position) RatioBps(assetPrice, collateralPrice decimal.Decimal) (decimal.Decimal, bool) {
	debtValue := p.Debt.Add(p.AccruedInterest).Mul(assetPrice)
	if !debtValue.IsPositive() {
		return decimal.Decimal{}, false
	}
	collateralValue := p.Collateral.Mul(collateralPrice)
	return collateralValue.Mul(decimal.NewFromInt(10000)).Div(debtValue), true
}

// HistoryAction classifies one position state transition.
type HistoryAction string

const (
	ActionOpen               HistoryAction = "OPEN"
	ActionAddCollateral      HistoryAction = "ADD_COLLATERAL"
	ActionWithdrawCollateral HistoryAction = "WITHDRAW_COLLATERAL"
	ActionBorrow             HistoryAction = "BORROW"
	ActionRepay              HistoryAction = "REPAY"
	ActionPayInterest        HistoryAction = "PAY_INTEREST"
	ActionFreeze             HistoryAction = "FREEZE"
	ActionLiquidate          HistoryAction = "LIQUIDATE"
)

// PositionHistory is one append-only row per state transition. Snapshot
// columns record the position after the transition; delta columns record
// new − old. History rows are the sole source of volume calculations.
type PositionHistory struct {
	ID              int64
	PositionID      int64
	Asset           string
	OwnerAddress    string
	Action          HistoryAction
	Collateral      decimal.Decimal
	Debt            decimal.Decimal
	CollateralDelta decimal.Decimal
	DebtDelta       decimal.Decimal
	InterestDelta   decimal.Decimal
	Timestamp       time.Time
}
