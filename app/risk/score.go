package risk

import (
	"time"

	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/shopspring/decimal"
)

// Band offsets over the minimum collateralization ratio, in basis points.
// A position is critical within 5% of the minimum and warning within 25%.
// The fully-safe margin is configured per asset; the default matches the
// config default.
const (
	criticalMarginBps    = 500
	warningMarginBps     = 2500
	defaultSafeMarginBps = 5000
)

// Asset health score weights. Sum is 1.0.
var (
	weightAvgRatio     = decimal.NewFromFloat(0.35)
	weightCritical     = decimal.NewFromFloat(0.30)
	weightWarning      = decimal.NewFromFloat(0.20)
	weightLiquidations = decimal.NewFromFloat(0.15)
)

// User risk score weights. Sum is 1.0.
var (
	weightUserLiquidation = decimal.NewFromFloat(0.40)
	weightUserCollateral  = decimal.NewFromFloat(0.30)
	weightUserAge         = decimal.NewFromFloat(0.15)
	weightUserActivity    = decimal.NewFromFloat(0.15)
)

var hundred = decimal.NewFromInt(100)

// HealthFactor measures distance to liquidation: 1.0 exactly at the
// minimum ratio, below 1.0 when liquidatable.
func HealthFactor(ratioBps decimal.Decimal, minRatioBps int64) decimal.Decimal {
	return ratioBps.Div(decimal.NewFromInt(minRatioBps))
}

// nearLiquidationFactor is the health factor at or below which a position
// counts as near liquidation.
var nearLiquidationFactor = decimal.NewFromFloat(1.2)

// NearLiquidation reports whether a health factor is in the danger zone.
func NearLiquidation(factor decimal.Decimal) bool {
	return factor.LessThanOrEqual(nearLiquidationFactor)
}

// BookStats summarizes one asset's open position book at given prices.
type BookStats struct {
	OpenPositions        int64
	AvgRatioBps          decimal.Decimal
	CriticalCount        int64
	WarningCount         int64
	NearLiquidationCount int64
	TotalCollateral      decimal.Decimal
	TotalDebt            decimal.Decimal
}

// SummarizeBook computes the per-position ratios, band counts and totals
// for one asset's active positions. Positions without debt count toward
// totals but not toward the ratio average or bands.
func SummarizeBook(positions []*models.Position, assetPrice, collateralPrice decimal.Decimal, minRatioBps int64) BookStats {
	stats := BookStats{
		AvgRatioBps:     decimal.Zero,
		TotalCollateral: decimal.Zero,
		TotalDebt:       decimal.Zero,
	}

	critical := decimal.NewFromInt(minRatioBps + criticalMarginBps)
	warning := decimal.NewFromInt(minRatioBps + warningMarginBps)

	ratioSum := decimal.Zero
	rated := int64(0)
	for _, p := range positions {
		stats.OpenPositions++
		stats.TotalCollateral = stats.TotalCollateral.Add(p.Collateral)
		stats.TotalDebt = stats.TotalDebt.Add(p.Debt)

		ratio, ok := p.RatioBps(assetPrice, collateralPrice)
		if !ok {
			continue
		}
		ratioSum = ratioSum.Add(ratio)
		rated++
		if ratio.LessThan(critical) {
			stats.CriticalCount++
		} else if ratio.LessThan(warning) {
			stats.WarningCount++
		}
		if NearLiquidation(HealthFactor(ratio, minRatioBps)) {
			stats.NearLiquidationCount++
		}
	}
	if rated > 0 {
		stats.AvgRatioBps = ratioSum.Div(decimal.NewFromInt(rated))
	}
	return stats
}

// AssetHealthScore collapses a book summary and the recent freeze count
// into a 0..100 score; 100 is a book with no open positions. Components:
// how far the average ratio sits above the minimum relative to the asset's
// safe margin, the critical and warning fractions, and the recently frozen
// fraction of the book.
func AssetHealthScore(stats BookStats, minRatioBps, safeMarginBps, recentFreezes int64) int64 {
	if stats.OpenPositions == 0 {
		return 100
	}
	if safeMarginBps <= 0 {
		safeMarginBps = defaultSafeMarginBps
	}

	min := decimal.NewFromInt(minRatioBps)
	safe := decimal.NewFromInt(minRatioBps + safeMarginBps)
	avgComponent := clampPct(stats.AvgRatioBps.Sub(min).Div(safe.Sub(min)).Mul(hundred))

	open := decimal.NewFromInt(stats.OpenPositions)
	criticalComponent := hundred.Sub(decimal.NewFromInt(stats.CriticalCount).Div(open).Mul(hundred))
	warningComponent := hundred.Sub(decimal.NewFromInt(stats.WarningCount).Div(open).Mul(hundred))

	// Frozen fraction of the book, capped at 1.
	frozenFrac := decimal.NewFromInt(recentFreezes).Div(open)
	if frozenFrac.GreaterThan(decimal.NewFromInt(1)) {
		frozenFrac = decimal.NewFromInt(1)
	}
	liqComponent := hundred.Sub(frozenFrac.Mul(hundred))

	score := avgComponent.Mul(weightAvgRatio).
		Add(criticalComponent.Mul(weightCritical)).
		Add(warningComponent.Mul(weightWarning)).
		Add(liqComponent.Mul(weightLiquidations))

	return clampScore(score.IntPart())
}

// HistogramConfig shapes the collateral distribution histogram. Bounds and
// width are in percentage points above the minimum ratio.
type HistogramConfig struct {
	MinPct   int64
	MaxPct   int64
	WidthPct int64
}

// Buckets returns the bucket count: one underwater bucket below the
// minimum ratio, the configured range, and one overflow bucket above it.
func (c HistogramConfig) Buckets() int {
	return int((c.MaxPct-c.MinPct)/c.WidthPct) + 2
}

// CollateralHistogram distributes the book's collateral across ratio
// buckets. Bucket 0 holds positions below the minimum ratio, the last
// bucket everything above the configured maximum; debt-free positions land
// in the overflow bucket. The bucket sum equals the book's total
// collateral.
func CollateralHistogram(positions []*models.Position, assetPrice, collateralPrice decimal.Decimal, minRatioBps int64, cfg HistogramConfig) []decimal.Decimal {
	buckets := make([]decimal.Decimal, cfg.Buckets())
	for i := range buckets {
		buckets[i] = decimal.Zero
	}

	min := decimal.NewFromInt(minRatioBps)
	for _, p := range positions {
		ratio, ok := p.RatioBps(assetPrice, collateralPrice)
		if !ok {
			buckets[len(buckets)-1] = buckets[len(buckets)-1].Add(p.Collateral)
			continue
		}

		idx := 0
		if ratio.GreaterThanOrEqual(min) {
			// Percentage points above the minimum ratio.
			above := ratio.Sub(min).Div(hundred).IntPart()
			switch {
			case above >= cfg.MaxPct:
				idx = len(buckets) - 1
			case above < cfg.MinPct:
				idx = 1
			default:
				idx = 1 + int((above-cfg.MinPct)/cfg.WidthPct)
			}
		}
		buckets[idx] = buckets[idx].Add(p.Collateral)
	}
	return buckets
}

// UserRiskInputs are the per-owner aggregates feeding the composite score.
type UserRiskInputs struct {
	RecentLiquidations   int64
	LifetimeLiquidations int64

	// AvgHealthFactor is the debt-weighted average health factor across
	// the owner's active positions; zero when the owner has none.
	AvgHealthFactor decimal.Decimal
	HasActive       bool

	// FirstActivity is the owner's oldest recorded action; zero when the
	// owner has no history.
	FirstActivity time.Time

	// RiskyActions24h counts borrow and collateral-withdrawal actions in
	// the last 24 hours.
	RiskyActions24h int64
}

// UserRiskScore collapses the aggregates into 0..100; higher is riskier.
func UserRiskScore(in UserRiskInputs, now time.Time) (total, liquidation, collateral, age, activity int64) {
	liquidation = 20 * in.RecentLiquidations
	if liquidation > 80 {
		liquidation = 80
	}
	lifetime := 2 * in.LifetimeLiquidations
	if lifetime > 20 {
		lifetime = 20
	}
	liquidation += lifetime

	collateral = collateralRiskBand(in)
	age = ageRiskBand(in.FirstActivity, now)
	activity = activityRiskBand(in.RiskyActions24h)

	score := decimal.NewFromInt(liquidation).Mul(weightUserLiquidation).
		Add(decimal.NewFromInt(collateral).Mul(weightUserCollateral)).
		Add(decimal.NewFromInt(age).Mul(weightUserAge)).
		Add(decimal.NewFromInt(activity).Mul(weightUserActivity))

	return clampScore(score.Round(0).IntPart()), liquidation, collateral, age, activity
}

func collateralRiskBand(in UserRiskInputs) int64 {
	if !in.HasActive {
		return 0
	}
	hf := in.AvgHealthFactor
	switch {
	case hf.LessThan(decimal.NewFromInt(1)):
		return 100
	case hf.LessThan(decimal.NewFromFloat(1.1)):
		return 80
	case hf.LessThan(decimal.NewFromFloat(1.25)):
		return 60
	case hf.LessThan(decimal.NewFromFloat(1.5)):
		return 40
	case hf.LessThan(decimal.NewFromInt(2)):
		return 20
	default:
		return 0
	}
}

func ageRiskBand(first time.Time, now time.Time) int64 {
	if first.IsZero() {
		return 100
	}
	days := int64(now.Sub(first).Hours() / 24)
	switch {
	case days < 7:
		return 100
	case days < 30:
		return 70
	case days < 90:
		return 40
	case days < 180:
		return 20
	default:
		return 0
	}
}

func activityRiskBand(actions int64) int64 {
	switch {
	case actions == 0:
		return 0
	case actions <= 2:
		return 25
	case actions <= 5:
		return 50
	case actions <= 10:
		return 75
	default:
		return 100
	}
}

func clampPct(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(hundred) {
		return hundred
	}
	return v
}

func clampScore(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
