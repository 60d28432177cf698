package rpc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// StatusError is a non-2xx response carrying the upstream message.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc: http %d: %s", e.Code, e.Message)
}

func newStatusError(code int, message string) error {
	err := &StatusError{Code: code, Message: message}
	if re, ok := parseRangeError(message); ok {
		return re
	}
	return err
}

// RangeError reports that a requested start ledger falls outside the node's
// retention window. OldestLedger is the minimum ledger the node still
// retains, parsed from the upstream message.
type RangeError struct {
	OldestLedger uint32
	Message      string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("rpc: start ledger outside retention window (oldest retained %d): %s", e.OldestLedger, e.Message)
}

// AsRangeError unwraps err into a *RangeError if it is one.
func AsRangeError(err error) (*RangeError, bool) {
	var re *RangeError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// rangeErrRe matches the upstream's retention rejections, e.g.
//
//	"startLedger must be within the ledger range: 123456 - 234567"
//	"start is before oldest ledger: 123456"
var rangeErrRe = regexp.MustCompile(`(?i)(?:ledger range:\s*|oldest ledger[:\s]+)(\d+)`)

func parseRangeError(message string) (*RangeError, bool) {
	m := rangeErrRe.FindStringSubmatch(message)
	if m == nil {
		return nil, false
	}
	oldest, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return nil, false
	}
	return &RangeError{OldestLedger: uint32(oldest), Message: message}, true
}
