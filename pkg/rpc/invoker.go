package rpc

import (
	"context"
	"fmt"
	"net/http"
)

// Protective contract methods submitted by this service.
const (
	MethodFreezePosition    = "freeze_position"
	MethodLiquidatePosition = "liquidate_position"
)

// InvokeStatus is the typed outcome of a contract invocation. A FAILED
// status is an expected result (e.g. the position was already frozen by the
// other trigger path), not a transport error.
type InvokeStatus string

const (
	InvokeSuccess InvokeStatus = "SUCCESS"
	InvokeFailed  InvokeStatus = "FAILED"
)

// InvokeResult is the upstream's report of a submitted contract call.
type InvokeResult struct {
	Status InvokeStatus `json:"status"`
	Detail string       `json:"detail"`
}

// Succeeded reports whether the call was applied on-chain.
func (r InvokeResult) Succeeded() bool { return r.Status == InvokeSuccess }

// Invoker submits protective contract calls (freeze, liquidate).
type Invoker interface {
	Invoke(ctx context.Context, contractID, method string, args []string) (InvokeResult, error)
}

type invokeRequest struct {
	ContractID string   `json:"contractId"`
	Method     string   `json:"method"`
	Args       []string `json:"args"`
}

// HTTPInvoker implements Invoker over the upstream's invoke endpoint.
type HTTPInvoker struct {
	http *HTTPClient
}

func NewInvoker(http *HTTPClient) *HTTPInvoker {
	return &HTTPInvoker{http: http}
}

// Invoke submits the call and returns its typed result. Only transport
// failures surface as errors; rejected calls come back as InvokeFailed.
func (i *HTTPInvoker) Invoke(ctx context.Context, contractID, method string, args []string) (InvokeResult, error) {
	req := invokeRequest{ContractID: contractID, Method: method, Args: args}

	var out InvokeResult
	if err := i.http.doJSON(ctx, http.MethodPost, PathInvoke, req, &out); err != nil {
		return InvokeResult{}, fmt.Errorf("invoke %s.%s: %w", contractID, method, err)
	}
	return out, nil
}
