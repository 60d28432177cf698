package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event kind discriminators, topic position 0.
const (
	topicPositionUpdated    = "position_updated"
	topicPositionLiquidated = "position_liquidated"
	topicStakeUpdated       = "stake_updated"
)

// ErrUnknownKind reports a topic discriminator this indexer does not handle.
// Callers skip such events rather than failing the batch.
var ErrUnknownKind = errors.New("rpc: unknown event kind")

// Meta is the envelope shared by every decoded event.
type Meta struct {
	ID         string
	ContractID string
	Ledger     uint32
	Timestamp  time.Time
}

// Event is the closed set of decoded contract events. The three concrete
// types are PositionEvent, LiquidationEvent and StakeEvent; consumers
// dispatch with an exhaustive type switch.
type Event interface {
	Meta() Meta
	sealed()
}

// PositionEvent is an authoritative snapshot of a CDP after a state change.
// Amounts are snapshots, not deltas.
type PositionEvent struct {
	EventMeta       Meta
	Owner           string
	Collateral      decimal.Decimal
	Debt            decimal.Decimal
	AccruedInterest decimal.Decimal
	InterestPaid    decimal.Decimal
	StatusCode      int
}

func (e *PositionEvent) Meta() Meta { return e.EventMeta }
func (e *PositionEvent) sealed()    {}

// LiquidationEvent reports a protective state change observed on-chain:
// the position became insolvent, was frozen, or was liquidated.
type LiquidationEvent struct {
	EventMeta        Meta
	Owner            string
	CollateralSeized decimal.Decimal
	DebtCovered      decimal.Decimal
	StatusCode       int
}

func (e *LiquidationEvent) Meta() Meta { return e.EventMeta }
func (e *LiquidationEvent) sealed()    {}

// StakeEvent is an authoritative snapshot of a staking-pool deposit.
type StakeEvent struct {
	EventMeta          Meta
	Owner              string
	Deposit            decimal.Decimal
	ProductConstant    decimal.Decimal
	CompoundedConstant decimal.Decimal
	Epoch              int64
	RewardsClaimed     decimal.Decimal
}

func (e *StakeEvent) Meta() Meta { return e.EventMeta }
func (e *StakeEvent) sealed()    {}

type positionPayload struct {
	Owner           string          `json:"owner"`
	Collateral      decimal.Decimal `json:"collateral"`
	Debt            decimal.Decimal `json:"debt"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
	InterestPaid    decimal.Decimal `json:"interest_paid"`
	Status          int             `json:"status"`
}

type liquidationPayload struct {
	Owner            string          `json:"owner"`
	CollateralSeized decimal.Decimal `json:"collateral_seized"`
	DebtCovered      decimal.Decimal `json:"debt_covered"`
	Status           int             `json:"status"`
}

type stakePayload struct {
	Owner              string          `json:"owner"`
	Deposit            decimal.Decimal `json:"deposit"`
	ProductConstant    decimal.Decimal `json:"product_constant"`
	CompoundedConstant decimal.Decimal `json:"compounded_constant"`
	Epoch              int64           `json:"epoch"`
	RewardsClaimed     decimal.Decimal `json:"rewards_claimed"`
}

// Decode maps a wire event to its tagged variant by topic discriminator.
// Unknown discriminators return ErrUnknownKind.
func Decode(w WireEvent) (Event, error) {
	if len(w.Topics) == 0 {
		return nil, fmt.Errorf("%w: event %s has no topics", ErrUnknownKind, w.ID)
	}

	meta := Meta{
		ID:         w.ID,
		ContractID: w.ContractID,
		Ledger:     w.Ledger,
		Timestamp:  w.LedgerClosedAt,
	}

	switch w.Topics[0] {
	case topicPositionUpdated:
		var p positionPayload
		if err := json.Unmarshal(w.Value, &p); err != nil {
			return nil, fmt.Errorf("decode position event %s: %w", w.ID, err)
		}
		return &PositionEvent{
			EventMeta:       meta,
			Owner:           p.Owner,
			Collateral:      p.Collateral,
			Debt:            p.Debt,
			AccruedInterest: p.AccruedInterest,
			InterestPaid:    p.InterestPaid,
			StatusCode:      p.Status,
		}, nil

	case topicPositionLiquidated:
		var p liquidationPayload
		if err := json.Unmarshal(w.Value, &p); err != nil {
			return nil, fmt.Errorf("decode liquidation event %s: %w", w.ID, err)
		}
		return &LiquidationEvent{
			EventMeta:        meta,
			Owner:            p.Owner,
			CollateralSeized: p.CollateralSeized,
			DebtCovered:      p.DebtCovered,
			StatusCode:       p.Status,
		}, nil

	case topicStakeUpdated:
		var p stakePayload
		if err := json.Unmarshal(w.Value, &p); err != nil {
			return nil, fmt.Errorf("decode stake event %s: %w", w.ID, err)
		}
		return &StakeEvent{
			EventMeta:          meta,
			Owner:              p.Owner,
			Deposit:            p.Deposit,
			ProductConstant:    p.ProductConstant,
			CompoundedConstant: p.CompoundedConstant,
			Epoch:              p.Epoch,
			RewardsClaimed:     p.RewardsClaimed,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Topics[0])
	}
}
