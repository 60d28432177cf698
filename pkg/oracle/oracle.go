package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/meridianlabs/lendx/pkg/rpc"
	"github.com/shopspring/decimal"
)

// Price is one oracle observation for a feed.
type Price struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Source serves the latest oracle price per feed.
type Source interface {
	LatestPrice(ctx context.Context, feedID string) (Price, error)
}

// Client implements Source against the oracle contract's HTTP gateway.
type Client struct {
	http *rpc.HTTPClient
}

func NewClient(http *rpc.HTTPClient) *Client {
	return &Client{http: http}
}

type priceRequest struct {
	FeedID string `json:"feedId"`
}

// LatestPrice returns the most recent observation for feedID.
func (c *Client) LatestPrice(ctx context.Context, feedID string) (Price, error) {
	var out Price
	if err := c.http.DoJSON(ctx, http.MethodPost, rpc.PathLatestPrice, priceRequest{FeedID: feedID}, &out); err != nil {
		return Price{}, fmt.Errorf("latestPrice %s: %w", feedID, err)
	}
	if out.Price.IsZero() || out.Price.IsNegative() {
		return Price{}, fmt.Errorf("latestPrice %s: non-positive price %s", feedID, out.Price)
	}
	return out, nil
}
