package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meridianlabs/lendx/pkg/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(rpc.NewHTTPWithOpts(rpc.Opts{Endpoints: []string{srv.URL}}))
}

func TestLatestPrice(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, rpc.PathLatestPrice, r.URL.Path)
		var req struct {
			FeedID string `json:"feedId"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "feed:yUSD", req.FeedID)

		_ = json.NewEncoder(w).Encode(Price{Price: decimal.RequireFromString("1.02"), Timestamp: at})
	})

	p, err := client.LatestPrice(context.Background(), "feed:yUSD")
	require.NoError(t, err)
	require.True(t, p.Price.Equal(decimal.RequireFromString("1.02")))
	require.Equal(t, at, p.Timestamp)
}

func TestLatestPriceRejectsNonPositive(t *testing.T) {
	for _, raw := range []string{"0", "-1"} {
		client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(Price{Price: decimal.RequireFromString(raw)})
		})

		_, err := client.LatestPrice(context.Background(), "feed:yUSD")
		require.Error(t, err)
		require.Contains(t, err.Error(), "non-positive")
	}
}
