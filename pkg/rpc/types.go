package rpc

import (
	"encoding/json"
	"time"
)

// MaxContractsPerFilter is the upstream cap on contract IDs per getEvents
// call. Larger filter sets must be partitioned into batches of this size.
const MaxContractsPerFilter = 5

// LatestLedgerResult is the response to a getLatestLedger query.
type LatestLedgerResult struct {
	Sequence uint32 `json:"sequence"`
}

// GetEventsRequest queries contract events over a ledger range. Either the
// range bounds or a continuation cursor is set, never both.
type GetEventsRequest struct {
	StartLedger uint32   `json:"startLedger,omitempty"`
	EndLedger   uint32   `json:"endLedger,omitempty"`
	ContractIDs []string `json:"contractIds,omitempty"`
	Cursor      string   `json:"cursor,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// EventPage is one page of a getEvents response.
type EventPage struct {
	Events       []WireEvent `json:"events"`
	Cursor       string      `json:"cursor"`
	LatestLedger uint32      `json:"latestLedger"`
	OldestLedger uint32      `json:"oldestLedger"`
}

// WireEvent is a raw contract event as returned by the upstream node.
// Topics carry the kind discriminator in position 0; Value is the
// kind-specific payload, decoded by Decode.
type WireEvent struct {
	ID             string          `json:"id"`
	ContractID     string          `json:"contractId"`
	Ledger         uint32          `json:"ledger"`
	LedgerClosedAt time.Time       `json:"ledgerClosedAt"`
	Topics         []string        `json:"topics"`
	Value          json.RawMessage `json:"value"`
}
