package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStatusFromCode(t *testing.T) {
	cases := map[int]PositionStatus{
		0: StatusOpen,
		1: StatusInsolvent,
		2: StatusFrozen,
		3: StatusClosed,
	}
	for code, want := range cases {
		got, ok := StatusFromCode(code)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := StatusFromCode(4)
	require.False(t, ok)
	_, ok = StatusFromCode(-1)
	require.False(t, ok)
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[PositionStatus][]PositionStatus{
		StatusOpen:      {StatusInsolvent, StatusFrozen},
		StatusInsolvent: {StatusFrozen},
		StatusFrozen:    {StatusClosed},
		StatusClosed:    {},
	}

	all := []PositionStatus{StatusOpen, StatusInsolvent, StatusFrozen, StatusClosed}
	for from, nexts := range allowed {
		legal := map[PositionStatus]bool{}
		for _, n := range nexts {
			legal[n] = true
		}
		for _, to := range all {
			require.Equal(t, legal[to], from.CanTransitionTo(to),
				"%s -> %s", from, to)
		}
	}
}

func TestRatioBps(t *testing.T) {
	p := &Position{
		Collateral:      decimal.NewFromInt(1500),
		Debt:            decimal.NewFromInt(900),
		AccruedInterest: decimal.NewFromInt(100),
	}

	// 1500 collateral over 1000 total debt at equal prices is 150%.
	ratio, ok := p.RatioBps(decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.True(t, ok)
	require.True(t, ratio.Equal(decimal.NewFromInt(15000)))

	// Prices scale the ratio.
	ratio, ok = p.RatioBps(decimal.NewFromInt(2), decimal.NewFromInt(1))
	require.True(t, ok)
	require.True(t, ratio.Equal(decimal.NewFromInt(7500)))

	// Debt-free positions have no ratio.
	free := &Position{Collateral: decimal.NewFromInt(100)}
	_, ok = free.RatioBps(decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.False(t, ok)
}
