package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionEventRow is a raw indexed CDP event. Immutable once written;
// event_id is unique and duplicate inserts are no-ops.
type PositionEventRow struct {
	EventID         string
	ContractID      string
	Asset           string
	OwnerAddress    string
	Collateral      decimal.Decimal
	Debt            decimal.Decimal
	AccruedInterest decimal.Decimal
	InterestPaid    decimal.Decimal
	StatusCode      int
	Ledger          uint32
	Timestamp       time.Time
}

// LiquidationEventRow is a raw indexed liquidation/freeze event.
type LiquidationEventRow struct {
	EventID          string
	ContractID       string
	Asset            string
	OwnerAddress     string
	CollateralSeized decimal.Decimal
	DebtCovered      decimal.Decimal
	StatusCode       int
	Ledger           uint32
	Timestamp        time.Time
}

// StakeEventRow is a raw indexed staking-pool event.
type StakeEventRow struct {
	EventID            string
	ContractID         string
	Asset              string
	OwnerAddress       string
	Deposit            decimal.Decimal
	ProductConstant    decimal.Decimal
	CompoundedConstant decimal.Decimal
	Epoch              int64
	RewardsClaimed     decimal.Decimal
	Ledger             uint32
	Timestamp          time.Time
}
