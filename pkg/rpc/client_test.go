package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(NewHTTPWithOpts(Opts{Endpoints: []string{srv.URL}}))
}

func TestGetLatestLedger(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathLatestLedger, r.URL.Path)
		_ = json.NewEncoder(w).Encode(LatestLedgerResult{Sequence: 123})
	})

	seq, err := client.GetLatestLedger(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(123), seq)
}

func TestGetEventsRejectsOversizedFilter(t *testing.T) {
	client := testServer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("request must not reach the server")
	})

	_, err := client.GetEvents(context.Background(), GetEventsRequest{
		ContractIDs: []string{"a", "b", "c", "d", "e", "f"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "filter cap")
}

func TestGetEventsRoundTrip(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req GetEventsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, uint32(10), req.StartLedger)
		require.Equal(t, []string{"CPOOL"}, req.ContractIDs)

		_ = json.NewEncoder(w).Encode(EventPage{
			Events: []WireEvent{{ID: "ev1", ContractID: "CPOOL", Ledger: 11}},
			Cursor: "next",
		})
	})

	page, err := client.GetEvents(context.Background(), GetEventsRequest{
		StartLedger: 10,
		EndLedger:   20,
		ContractIDs: []string{"CPOOL"},
	})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, "next", page.Cursor)
}

func TestGetEventsRetentionRejectionBecomesRangeError(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "startLedger must be within the ledger range: 5000 - 9000",
		})
	})

	_, err := client.GetEvents(context.Background(), GetEventsRequest{StartLedger: 100, EndLedger: 200})
	re, ok := AsRangeError(err)
	require.True(t, ok)
	require.Equal(t, uint32(5000), re.OldestLedger)
}

func TestInvokerReportsTypedOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathInvoke, r.URL.Path)
		var req invokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, MethodFreezePosition, req.Method)

		_ = json.NewEncoder(w).Encode(InvokeResult{Status: InvokeFailed, Detail: "already frozen"})
	}))
	t.Cleanup(srv.Close)

	inv := NewInvoker(NewHTTPWithOpts(Opts{Endpoints: []string{srv.URL}}))
	result, err := inv.Invoke(context.Background(), "CPOOL", MethodFreezePosition, []string{"GOWNER"})
	require.NoError(t, err)
	require.False(t, result.Succeeded())
	require.Equal(t, "already frozen", result.Detail)
}
