package rpc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func wire(topic string, payload any) WireEvent {
	raw, _ := json.Marshal(payload)
	return WireEvent{
		ID:             "0000001-0001",
		ContractID:     "CPOOL",
		Ledger:         42,
		LedgerClosedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Topics:         []string{topic},
		Value:          raw,
	}
}

func TestDecodePositionUpdated(t *testing.T) {
	ev, err := Decode(wire("position_updated", map[string]any{
		"owner":            "GOWNER",
		"collateral":       "1500.5",
		"debt":             "1000",
		"accrued_interest": "12.25",
		"interest_paid":    "3",
		"status":           1,
	}))
	require.NoError(t, err)

	p, ok := ev.(*PositionEvent)
	require.True(t, ok)
	require.Equal(t, "GOWNER", p.Owner)
	require.True(t, p.Collateral.Equal(decimal.RequireFromString("1500.5")))
	require.True(t, p.AccruedInterest.Equal(decimal.RequireFromString("12.25")))
	require.Equal(t, 1, p.StatusCode)
	require.Equal(t, uint32(42), p.EventMeta.Ledger)
}

func TestDecodePositionLiquidated(t *testing.T) {
	ev, err := Decode(wire("position_liquidated", map[string]any{
		"owner":             "GOWNER",
		"collateral_seized": "1000",
		"debt_covered":      "950",
		"status":            2,
	}))
	require.NoError(t, err)

	l, ok := ev.(*LiquidationEvent)
	require.True(t, ok)
	require.True(t, l.CollateralSeized.Equal(decimal.NewFromInt(1000)))
	require.True(t, l.DebtCovered.Equal(decimal.NewFromInt(950)))
}

func TestDecodeStakeUpdated(t *testing.T) {
	ev, err := Decode(wire("stake_updated", map[string]any{
		"owner":               "GOWNER",
		"deposit":             "2000",
		"product_constant":    "0.997",
		"compounded_constant": "1.01",
		"epoch":               3,
		"rewards_claimed":     "1.5",
	}))
	require.NoError(t, err)

	s, ok := ev.(*StakeEvent)
	require.True(t, ok)
	require.True(t, s.Deposit.Equal(decimal.NewFromInt(2000)))
	require.Equal(t, int64(3), s.Epoch)
	require.True(t, s.RewardsClaimed.Equal(decimal.RequireFromString("1.5")))
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(wire("pool_rebalanced", map[string]any{}))
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode(WireEvent{ID: "x"})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeMalformedPayload(t *testing.T) {
	w := wire("position_updated", nil)
	w.Value = []byte(`{"collateral": "not-a-number"}`)
	_, err := Decode(w)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownKind)
}
