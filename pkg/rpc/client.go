package rpc

import (
	"context"
	"fmt"
	"net/http"
)

// LedgerClient is the read side of the upstream node: chain tip and
// contract-event queries.
type LedgerClient interface {
	GetLatestLedger(ctx context.Context) (uint32, error)
	GetEvents(ctx context.Context, req GetEventsRequest) (*EventPage, error)
}

// Client implements LedgerClient over HTTP.
type Client struct {
	http *HTTPClient
}

// NewClient wraps an HTTPClient as a LedgerClient.
func NewClient(http *HTTPClient) *Client {
	return &Client{http: http}
}

// GetLatestLedger returns the sequence of the newest closed ledger.
func (c *Client) GetLatestLedger(ctx context.Context) (uint32, error) {
	var out LatestLedgerResult
	if err := c.http.doJSON(ctx, http.MethodPost, PathLatestLedger, nil, &out); err != nil {
		return 0, fmt.Errorf("getLatestLedger: %w", err)
	}
	return out.Sequence, nil
}

// GetEvents fetches one page of contract events. Pagination continues with
// the returned cursor until an empty page is returned.
func (c *Client) GetEvents(ctx context.Context, req GetEventsRequest) (*EventPage, error) {
	if len(req.ContractIDs) > MaxContractsPerFilter {
		return nil, fmt.Errorf("getEvents: %d contract IDs exceeds filter cap %d",
			len(req.ContractIDs), MaxContractsPerFilter)
	}

	var out EventPage
	if err := c.http.doJSON(ctx, http.MethodPost, PathGetEvents, req, &out); err != nil {
		return nil, fmt.Errorf("getEvents: %w", err)
	}
	return &out, nil
}
