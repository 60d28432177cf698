package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one oracle observation. The series is append-only;
// exactly one row per asset carries is_latest at any time.
type PriceSample struct {
	ID        int64
	Asset     string
	Price     decimal.Decimal
	Timestamp time.Time
	IsLatest  bool
}
