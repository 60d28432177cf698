package rpc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusErrorToRangeError(t *testing.T) {
	cases := []struct {
		message string
		oldest  uint32
	}{
		{"startLedger must be within the ledger range: 123456 - 234567", 123456},
		{"start is before oldest ledger: 5000", 5000},
		{"Oldest Ledger 77 exceeded", 77},
	}

	for _, tc := range cases {
		err := newStatusError(400, tc.message)
		re, ok := AsRangeError(err)
		require.True(t, ok, "message %q", tc.message)
		require.Equal(t, tc.oldest, re.OldestLedger)
	}
}

func TestPlainStatusErrorStaysStatusError(t *testing.T) {
	err := newStatusError(400, "invalid cursor")
	_, ok := AsRangeError(err)
	require.False(t, ok)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 400, se.Code)
	require.Equal(t, "invalid cursor", se.Message)
}

func TestAsRangeErrorUnwraps(t *testing.T) {
	inner := &RangeError{OldestLedger: 9, Message: "pruned"}
	wrapped := fmt.Errorf("getEvents: %w", inner)

	re, ok := AsRangeError(wrapped)
	require.True(t, ok)
	require.Equal(t, uint32(9), re.OldestLedger)
}
