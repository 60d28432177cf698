package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetHealthMetrics is an immutable snapshot of an asset's position book,
// inserted fresh on every metrics pass so history stays queryable.
type AssetHealthMetrics struct {
	ID                   int64
	Asset                string
	HealthScore          int64
	OpenPositions        int64
	AvgRatioBps          int64
	CriticalCount        int64
	WarningCount         int64
	NearLiquidationCount int64
	RecentFreezes        int64
	TotalCollateral      decimal.Decimal
	TotalDebt            decimal.Decimal
	Histogram            []decimal.Decimal
	CapturedAt           time.Time
}

// UserRiskProfile is an immutable per-user composite risk snapshot.
type UserRiskProfile struct {
	ID               int64
	OwnerAddress     string
	RiskScore        int64
	LiquidationScore int64
	CollateralScore  int64
	AgeScore         int64
	ActivityScore    int64
	CapturedAt       time.Time
}
