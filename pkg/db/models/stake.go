package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stake is the canonical record of one staking-pool deposit per
// (asset, owner).
type Stake struct {
	ID                  int64
	OwnerAddress        string
	Asset               string
	Deposit             decimal.Decimal
	ProductConstant     decimal.Decimal
	CompoundedConstant  decimal.Decimal
	Epoch               int64
	TotalRewardsClaimed decimal.Decimal
	UpdatedAt           time.Time
}

// StakeAction classifies one observed stake state change.
type StakeAction string

const (
	StakeActionStake        StakeAction = "STAKE"
	StakeActionUnstake      StakeAction = "UNSTAKE"
	StakeActionDeposit      StakeAction = "DEPOSIT"
	StakeActionWithdraw     StakeAction = "WITHDRAW"
	StakeActionClaimRewards StakeAction = "CLAIM_REWARDS"
)

// StakeHistory is one append-only row per classified stake action.
type StakeHistory struct {
	ID           int64
	StakeID      int64
	Asset        string
	OwnerAddress string
	Action       StakeAction
	Deposit      decimal.Decimal
	DepositDelta decimal.Decimal
	Rewards      decimal.Decimal
	Timestamp    time.Time
}
