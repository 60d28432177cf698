package monitor

import (
	"context"
	"time"

	"github.com/meridianlabs/lendx/pkg/config"
	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/meridianlabs/lendx/pkg/oracle"
	"github.com/meridianlabs/lendx/pkg/registry"
	"github.com/meridianlabs/lendx/pkg/retry"
	"github.com/meridianlabs/lendx/pkg/rpc"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the slice of the database the monitor reads and writes.
type Store interface {
	InsertPriceSample(ctx context.Context, asset string, price decimal.Decimal, sampledAt time.Time) error
	LatestPrice(ctx context.Context, asset string) (*models.PriceSample, error)
	ActivePositionsByAsset(ctx context.Context, asset string) ([]*models.Position, error)
	UpdatePositionStatus(ctx context.Context, id int64, status models.PositionStatus) error
	InsertPositionHistory(ctx context.Context, h *models.PositionHistory) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Monitor polls oracle prices and freezes undercollateralized positions.
// The expensive position scan runs only when an asset's price rises
// relative to the collateral, since that is the only direction in which a
// previously safe position can become unsafe.
type Monitor struct {
	logger  *zap.Logger
	store   Store
	oracle  oracle.Source
	invoker rpc.Invoker
	reg     *registry.Registry

	// lastRatio caches the asset/collateral price ratio per asset symbol.
	// Populated from stored samples on the first pass after boot.
	lastRatio *xsync.Map[string, decimal.Decimal]
}

func New(logger *zap.Logger, store Store, src oracle.Source, invoker rpc.Invoker, reg *registry.Registry) *Monitor {
	return &Monitor{
		logger:    logger.With(zap.String("component", "monitor")),
		store:     store,
		oracle:    src,
		invoker:   invoker,
		reg:       reg,
		lastRatio: xsync.NewMap[string, decimal.Decimal](),
	}
}

// Run is one scheduler pass: sample the collateral price, then per asset
// sample its price, persist both, and scan the asset's positions if the
// price ratio moved against borrowers.
func (m *Monitor) Run(ctx context.Context) error {
	// Read every baseline before this pass persists any sample. The cold
	// fallback pairs the stored asset sample with the stored collateral
	// sample, both from before this pass, so the ratio compares like with
	// like even when the collateral price moved across a restart.
	baselines := make(map[string]decimal.Decimal)
	for _, symbol := range m.reg.Symbols() {
		if prev, ok := m.previousRatio(ctx, symbol); ok {
			baselines[symbol] = prev
		}
	}

	collateralPrice, err := m.samplePrice(ctx, m.reg.CollateralSymbol(), m.reg.CollateralFeed())
	if err != nil {
		return err
	}

	for _, symbol := range m.reg.Symbols() {
		asset, _ := m.reg.BySymbol(symbol)

		assetPrice, err := m.samplePrice(ctx, symbol, asset.OracleFeed)
		if err != nil {
			m.logger.Warn("Price sample failed, skipping asset",
				zap.String("asset", symbol), zap.Error(err))
			continue
		}

		ratio := assetPrice.Div(collateralPrice)
		m.lastRatio.Store(symbol, ratio)

		prev, known := baselines[symbol]
		if known && !ratio.GreaterThan(prev) {
			continue
		}
		if !known {
			// Nothing to compare against; scan once to establish a baseline.
			m.logger.Info("No prior price ratio, running baseline scan",
				zap.String("asset", symbol))
		}

		if err := m.scanAsset(ctx, asset, assetPrice, collateralPrice); err != nil {
			m.logger.Error("Position scan failed",
				zap.String("asset", symbol), zap.Error(err))
		}
	}
	return nil
}

// samplePrice reads the feed and appends the sample, moving the is_latest
// flag in the same transaction.
func (m *Monitor) samplePrice(ctx context.Context, symbol, feedID string) (decimal.Decimal, error) {
	var price oracle.Price
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), m.logger, "oracle_price", func() error {
		var err error
		price, err = m.oracle.LatestPrice(ctx, feedID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	if err := m.store.InsertPriceSample(ctx, symbol, price.Price, price.Timestamp); err != nil {
		return decimal.Zero, err
	}
	return price.Price, nil
}

// previousRatio returns the last observed asset/collateral ratio, falling
// back to the stored asset and collateral samples when the in-memory cache
// is cold.
func (m *Monitor) previousRatio(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if prev, ok := m.lastRatio.Load(symbol); ok {
		return prev, true
	}

	sample, err := m.store.LatestPrice(ctx, symbol)
	if err != nil || sample == nil {
		return decimal.Zero, false
	}
	collateral, err := m.store.LatestPrice(ctx, m.reg.CollateralSymbol())
	if err != nil || collateral == nil || !collateral.Price.IsPositive() {
		return decimal.Zero, false
	}
	return sample.Price.Div(collateral.Price), true
}

// scanAsset walks the asset's open and insolvent positions and freezes any
// whose collateralization ratio fell below the on-chain minimum.
func (m *Monitor) scanAsset(ctx context.Context, asset *config.Asset, assetPrice, collateralPrice decimal.Decimal) error {
	positions, err := m.store.ActivePositionsByAsset(ctx, asset.Symbol)
	if err != nil {
		return err
	}

	minRatio := decimal.NewFromInt(asset.MinRatioBps)
	frozen := 0
	for _, p := range positions {
		ratioBps, ok := p.RatioBps(assetPrice, collateralPrice)
		if !ok || ratioBps.GreaterThanOrEqual(minRatio) {
			continue
		}
		if !p.Status.CanTransitionTo(models.StatusFrozen) {
			continue
		}
		if m.freeze(ctx, asset, p, ratioBps) {
			frozen++
		}
	}

	if frozen > 0 {
		m.logger.Info("Undercollateralized positions frozen",
			zap.String("asset", asset.Symbol),
			zap.Int("count", frozen),
			zap.Int("scanned", len(positions)))
	}
	return nil
}

// freeze submits the on-chain call and, on success, records the status
// change and a FREEZE history row in one transaction. A FAILED invoke is
// expected when the reconciler's chain-truth path got there first.
func (m *Monitor) freeze(ctx context.Context, asset *config.Asset, p *models.Position, ratioBps decimal.Decimal) bool {
	var result rpc.InvokeResult
	err := retry.WithBackoff(ctx, retry.InvokeConfig(), m.logger, "freeze_position", func() error {
		var err error
		result, err = m.invoker.Invoke(ctx, asset.PoolContract, rpc.MethodFreezePosition, []string{p.OwnerAddress})
		return err
	})
	if err != nil {
		m.logger.Error("Freeze submission failed",
			zap.String("asset", asset.Symbol),
			zap.String("owner", p.OwnerAddress),
			zap.Error(err))
		return false
	}
	if !result.Succeeded() {
		m.logger.Warn("Freeze rejected on-chain",
			zap.String("asset", asset.Symbol),
			zap.String("owner", p.OwnerAddress),
			zap.String("detail", result.Detail))
		return false
	}

	err = m.store.InTx(ctx, func(ctx context.Context) error {
		if err := m.store.UpdatePositionStatus(ctx, p.ID, models.StatusFrozen); err != nil {
			return err
		}
		return m.store.InsertPositionHistory(ctx, &models.PositionHistory{
			PositionID:      p.ID,
			Asset:           p.Asset,
			OwnerAddress:    p.OwnerAddress,
			Action:          models.ActionFreeze,
			Collateral:      p.Collateral,
			Debt:            p.Debt,
			CollateralDelta: decimal.Zero,
			DebtDelta:       decimal.Zero,
			InterestDelta:   decimal.Zero,
			Timestamp:       time.Now().UTC(),
		})
	})
	if err != nil {
		m.logger.Error("Freeze recorded on-chain but not in store",
			zap.String("asset", asset.Symbol),
			zap.String("owner", p.OwnerAddress),
			zap.Error(err))
		return false
	}

	m.logger.Info("Position frozen",
		zap.String("asset", asset.Symbol),
		zap.String("owner", p.OwnerAddress),
		zap.String("ratio_bps", ratioBps.StringFixed(0)))
	return true
}
