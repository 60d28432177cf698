package rpc

// Upstream API paths, centralized so tests and fakes stay in sync.
const (
	PathLatestLedger = "/v1/getLatestLedger"
	PathGetEvents    = "/v1/getEvents"
	PathInvoke       = "/v1/invokeContract"
	PathLatestPrice  = "/v1/getLatestPrice"
)
