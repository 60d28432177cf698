package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/meridianlabs/lendx/pkg/config"
	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/meridianlabs/lendx/pkg/registry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the slice of the database the risk engine uses.
type Store interface {
	ActivePositionsByAsset(ctx context.Context, asset string) ([]*models.Position, error)
	LatestPrice(ctx context.Context, asset string) (*models.PriceSample, error)
	FreezeCountByAsset(ctx context.Context, asset string, since time.Time) (int64, error)
	InsertAssetHealthMetrics(ctx context.Context, m *models.AssetHealthMetrics) error
	LatestAssetHealthMetrics(ctx context.Context, asset string) (*models.AssetHealthMetrics, error)
	KnownOwners(ctx context.Context) ([]string, error)
	PositionsByOwner(ctx context.Context, owner string) ([]*models.Position, error)
	LiquidationCounts(ctx context.Context, owner string, since time.Time) (recent, lifetime int64, err error)
	FirstActivityTime(ctx context.Context, owner string) (time.Time, error)
	ActionCountSince(ctx context.Context, owner string, actions []models.HistoryAction, since time.Time) (int64, error)
	InsertUserRiskProfile(ctx context.Context, p *models.UserRiskProfile) error
	LatestUserRiskProfile(ctx context.Context, owner string) (*models.UserRiskProfile, error)
}

// Windows for the snapshot aggregates.
const (
	freezeWindow      = 24 * time.Hour
	liquidationWindow = 30 * 24 * time.Hour
	activityWindow    = 24 * time.Hour
)

const metricsWorkers = 4

// Engine computes asset health and user risk snapshots from reconciled
// state. All writes are inserts; snapshots are never updated in place.
type Engine struct {
	logger *zap.Logger
	store  Store
	reg    *registry.Registry
	hist   HistogramConfig
	pool   pond.Pool
}

func NewEngine(logger *zap.Logger, store Store, reg *registry.Registry, cfg *config.Config) *Engine {
	return &Engine{
		logger: logger.With(zap.String("component", "risk")),
		store:  store,
		reg:    reg,
		hist: HistogramConfig{
			MinPct:   cfg.Risk.HistogramMinPct,
			MaxPct:   cfg.Risk.HistogramMaxPct,
			WidthPct: cfg.Risk.HistogramWidth,
		},
		pool: pond.NewPool(metricsWorkers),
	}
}

// RunMetrics snapshots health metrics for every asset, fanned out over the
// worker pool. One failing asset does not block the others.
func (e *Engine) RunMetrics(ctx context.Context) error {
	capturedAt := time.Now().UTC()

	group := e.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	var mu sync.Mutex
	var failures []error

	for _, symbol := range e.reg.Symbols() {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			if err := e.snapshotAsset(groupCtx, symbol, capturedAt); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("asset %s: %w", symbol, err))
				mu.Unlock()
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	return errors.Join(failures...)
}

func (e *Engine) snapshotAsset(ctx context.Context, symbol string, capturedAt time.Time) error {
	asset, ok := e.reg.BySymbol(symbol)
	if !ok {
		return fmt.Errorf("asset %s not in registry", symbol)
	}

	assetPrice, collateralPrice, err := e.currentPrices(ctx, symbol)
	if err != nil {
		return err
	}

	positions, err := e.store.ActivePositionsByAsset(ctx, symbol)
	if err != nil {
		return err
	}
	freezes, err := e.store.FreezeCountByAsset(ctx, symbol, capturedAt.Add(-freezeWindow))
	if err != nil {
		return err
	}

	stats := SummarizeBook(positions, assetPrice, collateralPrice, asset.MinRatioBps)
	metrics := &models.AssetHealthMetrics{
		Asset:                symbol,
		HealthScore:          AssetHealthScore(stats, asset.MinRatioBps, asset.SafeRatioMargin, freezes),
		OpenPositions:        stats.OpenPositions,
		AvgRatioBps:          stats.AvgRatioBps.IntPart(),
		CriticalCount:        stats.CriticalCount,
		WarningCount:         stats.WarningCount,
		NearLiquidationCount: stats.NearLiquidationCount,
		RecentFreezes:        freezes,
		TotalCollateral:      stats.TotalCollateral,
		TotalDebt:            stats.TotalDebt,
		Histogram:            CollateralHistogram(positions, assetPrice, collateralPrice, asset.MinRatioBps, e.hist),
		CapturedAt:           capturedAt,
	}

	prev, err := e.store.LatestAssetHealthMetrics(ctx, symbol)
	if err != nil {
		return err
	}

	if err := e.store.InsertAssetHealthMetrics(ctx, metrics); err != nil {
		return err
	}

	if prev != nil && metrics.HealthScore < prev.HealthScore {
		e.logger.Warn("Asset health declined since last snapshot",
			zap.String("asset", symbol),
			zap.Int64("score", metrics.HealthScore),
			zap.Int64("previous_score", prev.HealthScore),
			zap.Int64("near_liquidation", metrics.NearLiquidationCount))
	}

	e.logger.Debug("Asset health snapshot written",
		zap.String("asset", symbol),
		zap.Int64("score", metrics.HealthScore),
		zap.Int64("open_positions", metrics.OpenPositions),
		zap.Int64("near_liquidation", metrics.NearLiquidationCount))
	return nil
}

// RunProfiles snapshots a composite risk profile for every known owner.
func (e *Engine) RunProfiles(ctx context.Context) error {
	capturedAt := time.Now().UTC()

	owners, err := e.store.KnownOwners(ctx)
	if err != nil {
		return err
	}

	var failures []error
	for _, owner := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.snapshotOwner(ctx, owner, capturedAt); err != nil {
			failures = append(failures, fmt.Errorf("owner %s: %w", owner, err))
		}
	}

	e.logger.Info("User risk profiles written",
		zap.Int("owners", len(owners)),
		zap.Int("failures", len(failures)))
	return errors.Join(failures...)
}

func (e *Engine) snapshotOwner(ctx context.Context, owner string, capturedAt time.Time) error {
	recent, lifetime, err := e.store.LiquidationCounts(ctx, owner, capturedAt.Add(-liquidationWindow))
	if err != nil {
		return err
	}
	first, err := e.store.FirstActivityTime(ctx, owner)
	if err != nil {
		return err
	}
	risky, err := e.store.ActionCountSince(ctx, owner,
		[]models.HistoryAction{models.ActionBorrow, models.ActionWithdrawCollateral},
		capturedAt.Add(-activityWindow))
	if err != nil {
		return err
	}

	avgHF, hasActive, err := e.ownerHealthFactor(ctx, owner)
	if err != nil {
		return err
	}

	total, liq, coll, age, act := UserRiskScore(UserRiskInputs{
		RecentLiquidations:   recent,
		LifetimeLiquidations: lifetime,
		AvgHealthFactor:      avgHF,
		HasActive:            hasActive,
		FirstActivity:        first,
		RiskyActions24h:      risky,
	}, capturedAt)

	prev, err := e.store.LatestUserRiskProfile(ctx, owner)
	if err != nil {
		return err
	}

	if err := e.store.InsertUserRiskProfile(ctx, &models.UserRiskProfile{
		OwnerAddress:     owner,
		RiskScore:        total,
		LiquidationScore: liq,
		CollateralScore:  coll,
		AgeScore:         age,
		ActivityScore:    act,
		CapturedAt:       capturedAt,
	}); err != nil {
		return err
	}

	if prev != nil && total > prev.RiskScore {
		e.logger.Warn("User risk increased since last snapshot",
			zap.String("owner", owner),
			zap.Int64("score", total),
			zap.Int64("previous_score", prev.RiskScore))
	}
	return nil
}

// ownerHealthFactor is the debt-weighted average health factor across the
// owner's open and insolvent positions.
func (e *Engine) ownerHealthFactor(ctx context.Context, owner string) (decimal.Decimal, bool, error) {
	positions, err := e.store.PositionsByOwner(ctx, owner)
	if err != nil {
		return decimal.Zero, false, err
	}

	weighted := decimal.Zero
	totalDebt := decimal.Zero
	for _, p := range positions {
		if p.Status != models.StatusOpen && p.Status != models.StatusInsolvent {
			continue
		}
		asset, ok := e.reg.BySymbol(p.Asset)
		if !ok {
			continue
		}
		assetPrice, collateralPrice, err := e.currentPrices(ctx, p.Asset)
		if err != nil {
			continue
		}
		ratio, ok := p.RatioBps(assetPrice, collateralPrice)
		if !ok {
			continue
		}
		debt := p.Debt.Add(p.AccruedInterest)
		weighted = weighted.Add(HealthFactor(ratio, asset.MinRatioBps).Mul(debt))
		totalDebt = totalDebt.Add(debt)
	}

	if !totalDebt.IsPositive() {
		return decimal.Zero, false, nil
	}
	return weighted.Div(totalDebt), true, nil
}

// currentPrices returns the latest stored asset and collateral prices.
func (e *Engine) currentPrices(ctx context.Context, symbol string) (assetPrice, collateralPrice decimal.Decimal, err error) {
	sample, err := e.store.LatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if sample == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no price sample for %s", symbol)
	}
	collateral, err := e.store.LatestPrice(ctx, e.reg.CollateralSymbol())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if collateral == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no price sample for collateral %s", e.reg.CollateralSymbol())
	}
	return sample.Price, collateral.Price, nil
}
