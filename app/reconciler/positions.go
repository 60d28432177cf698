package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianlabs/lendx/pkg/db"
	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/meridianlabs/lendx/pkg/registry"
	"github.com/meridianlabs/lendx/pkg/retry"
	"github.com/meridianlabs/lendx/pkg/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionStore is the slice of the database the position reconciler uses.
type PositionStore interface {
	GetCheckpoint(ctx context.Context, streamID string) (int64, error)
	SetCheckpoint(ctx context.Context, streamID string, position int64) error
	PositionEventsAfter(ctx context.Context, after time.Time) ([]*models.PositionEventRow, error)
	LiquidationEventsAfter(ctx context.Context, after time.Time) ([]*models.LiquidationEventRow, error)
	GetPosition(ctx context.Context, asset, owner string) (*models.Position, error)
	UpsertPosition(ctx context.Context, p *models.Position) (int64, error)
	UpdatePositionStatus(ctx context.Context, id int64, status models.PositionStatus) error
	InsertPositionHistory(ctx context.Context, h *models.PositionHistory) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PositionReconciler folds raw position and liquidation events into the
// canonical positions table and the append-only history. Its checkpoint is
// the timestamp of the newest event it has fully absorbed, stored as
// microseconds; it advances only after every event in the pass committed.
type PositionReconciler struct {
	logger  *zap.Logger
	store   PositionStore
	invoker rpc.Invoker
	reg     *registry.Registry
}

func NewPositionReconciler(logger *zap.Logger, store PositionStore, invoker rpc.Invoker, reg *registry.Registry) *PositionReconciler {
	return &PositionReconciler{
		logger:  logger.With(zap.String("component", "position_reconciler")),
		store:   store,
		invoker: invoker,
		reg:     reg,
	}
}

// Run is one scheduler pass.
func (r *PositionReconciler) Run(ctx context.Context) error {
	cp, err := r.store.GetCheckpoint(ctx, db.StreamPositionReconciler)
	if err != nil {
		return err
	}
	after := time.UnixMicro(cp).UTC()

	events, err := r.store.PositionEventsAfter(ctx, after)
	if err != nil {
		return err
	}
	liquidations, err := r.store.LiquidationEventsAfter(ctx, after)
	if err != nil {
		return err
	}
	if len(events) == 0 && len(liquidations) == 0 {
		return nil
	}

	var maxSeen time.Time
	for _, ev := range events {
		if err := r.applySnapshot(ctx, ev); err != nil {
			return fmt.Errorf("apply position event %s: %w", ev.EventID, err)
		}
		if ev.Timestamp.After(maxSeen) {
			maxSeen = ev.Timestamp
		}
	}
	for _, ev := range liquidations {
		if err := r.applyLiquidation(ctx, ev); err != nil {
			return fmt.Errorf("apply liquidation event %s: %w", ev.EventID, err)
		}
		if ev.Timestamp.After(maxSeen) {
			maxSeen = ev.Timestamp
		}
	}

	if err := r.store.SetCheckpoint(ctx, db.StreamPositionReconciler, maxSeen.UnixMicro()); err != nil {
		return err
	}

	r.logger.Info("Positions reconciled",
		zap.Int("snapshots", len(events)),
		zap.Int("liquidations", len(liquidations)))
	return nil
}

// applySnapshot upserts the authoritative position state from one event and
// appends the classified history row in the same transaction.
func (r *PositionReconciler) applySnapshot(ctx context.Context, ev *models.PositionEventRow) error {
	status, ok := models.StatusFromCode(ev.StatusCode)
	if !ok {
		r.logger.Warn("Unknown position status code, skipping event",
			zap.String("event_id", ev.EventID),
			zap.Int("status_code", ev.StatusCode))
		return nil
	}

	return r.store.InTx(ctx, func(ctx context.Context) error {
		prev, err := r.store.GetPosition(ctx, ev.Asset, ev.OwnerAddress)
		if err != nil {
			return err
		}

		next := &models.Position{
			OwnerAddress:    ev.OwnerAddress,
			Asset:           ev.Asset,
			Collateral:      ev.Collateral,
			Debt:            ev.Debt,
			AccruedInterest: ev.AccruedInterest,
			InterestPaid:    ev.InterestPaid,
			LastInterest:    ev.Timestamp,
			Status:          status,
		}
		id, err := r.store.UpsertPosition(ctx, next)
		if err != nil {
			return err
		}

		action, deltas, ok := ClassifyPositionChange(prev, ev)
		if !ok {
			return nil
		}
		return r.store.InsertPositionHistory(ctx, &models.PositionHistory{
			PositionID:      id,
			Asset:           ev.Asset,
			OwnerAddress:    ev.OwnerAddress,
			Action:          action,
			Collateral:      ev.Collateral,
			Debt:            ev.Debt,
			CollateralDelta: deltas.Collateral,
			DebtDelta:       deltas.Debt,
			InterestDelta:   deltas.Interest,
			Timestamp:       ev.Timestamp,
		})
	})
}

// applyLiquidation is the chain-truth path: the contract reported a
// protective transition, so the local row follows it. An insolvent report
// triggers a freeze call, a frozen report triggers liquidation. Rejected
// invokes are expected when the price monitor raced us to the same position.
func (r *PositionReconciler) applyLiquidation(ctx context.Context, ev *models.LiquidationEventRow) error {
	asset, ok := r.reg.BySymbol(ev.Asset)
	if !ok {
		r.logger.Warn("Liquidation event for unknown asset, skipping",
			zap.String("event_id", ev.EventID),
			zap.String("asset", ev.Asset))
		return nil
	}

	pos, err := r.store.GetPosition(ctx, ev.Asset, ev.OwnerAddress)
	if err != nil {
		return err
	}
	if pos == nil {
		r.logger.Warn("Liquidation event for unknown position, skipping",
			zap.String("event_id", ev.EventID),
			zap.String("owner", ev.OwnerAddress))
		return nil
	}

	status, ok := models.StatusFromCode(ev.StatusCode)
	if !ok {
		r.logger.Warn("Unknown liquidation status code, skipping",
			zap.String("event_id", ev.EventID),
			zap.Int("status_code", ev.StatusCode))
		return nil
	}

	switch status {
	case models.StatusInsolvent:
		if pos.Status != models.StatusOpen && pos.Status != models.StatusInsolvent {
			return nil
		}
		r.submit(ctx, asset.PoolContract, rpc.MethodFreezePosition, ev.OwnerAddress)
		return r.store.InTx(ctx, func(ctx context.Context) error {
			if err := r.store.UpdatePositionStatus(ctx, pos.ID, models.StatusFrozen); err != nil {
				return err
			}
			return r.store.InsertPositionHistory(ctx, &models.PositionHistory{
				PositionID:   pos.ID,
				Asset:        pos.Asset,
				OwnerAddress: pos.OwnerAddress,
				Action:       models.ActionFreeze,
				Collateral:   pos.Collateral,
				Debt:         pos.Debt,
				Timestamp:    ev.Timestamp,
			})
		})

	case models.StatusFrozen:
		if pos.Status == models.StatusClosed {
			return nil
		}
		r.submit(ctx, asset.PoolContract, rpc.MethodLiquidatePosition, ev.OwnerAddress)
		return r.store.InTx(ctx, func(ctx context.Context) error {
			if err := r.store.UpdatePositionStatus(ctx, pos.ID, models.StatusClosed); err != nil {
				return err
			}
			return r.store.InsertPositionHistory(ctx, &models.PositionHistory{
				PositionID:      pos.ID,
				Asset:           pos.Asset,
				OwnerAddress:    pos.OwnerAddress,
				Action:          models.ActionLiquidate,
				Collateral:      pos.Collateral.Sub(ev.CollateralSeized),
				Debt:            pos.Debt.Sub(ev.DebtCovered),
				CollateralDelta: ev.CollateralSeized.Neg(),
				DebtDelta:       ev.DebtCovered.Neg(),
				Timestamp:       ev.Timestamp,
			})
		})

	default:
		return nil
	}
}

func (r *PositionReconciler) submit(ctx context.Context, contractID, method, owner string) {
	var result rpc.InvokeResult
	err := retry.WithBackoff(ctx, retry.InvokeConfig(), r.logger, method, func() error {
		var err error
		result, err = r.invoker.Invoke(ctx, contractID, method, []string{owner})
		return err
	})
	if err != nil {
		r.logger.Warn("Invoke submission failed",
			zap.String("method", method),
			zap.String("owner", owner),
			zap.Error(err))
		return
	}
	if !result.Succeeded() {
		r.logger.Debug("Invoke rejected on-chain",
			zap.String("method", method),
			zap.String("owner", owner),
			zap.String("detail", result.Detail))
	}
}

// Deltas is the classified change a snapshot applied to a position.
type Deltas struct {
	Collateral decimal.Decimal
	Debt       decimal.Decimal
	Interest   decimal.Decimal
}

// ClassifyPositionChange names the transition a snapshot represents. With
// no prior row the action is OPEN; otherwise the first nonzero delta in
// collateral, debt, interest-paid order decides. Snapshots that change
// nothing classified (interest accrual only) produce no history row.
func ClassifyPositionChange(prev *models.Position, ev *models.PositionEventRow) (models.HistoryAction, Deltas, bool) {
	if prev == nil {
		return models.ActionOpen, Deltas{
			Collateral: ev.Collateral,
			Debt:       ev.Debt,
		}, true
	}

	d := Deltas{
		Collateral: ev.Collateral.Sub(prev.Collateral),
		Debt:       ev.Debt.Sub(prev.Debt),
		Interest:   ev.InterestPaid.Sub(prev.InterestPaid),
	}

	switch {
	case d.Collateral.IsPositive():
		return models.ActionAddCollateral, d, true
	case d.Collateral.IsNegative():
		return models.ActionWithdrawCollateral, d, true
	case d.Debt.IsPositive():
		return models.ActionBorrow, d, true
	case d.Debt.IsNegative():
		return models.ActionRepay, d, true
	case d.Interest.IsPositive():
		return models.ActionPayInterest, d, true
	default:
		return "", Deltas{}, false
	}
}
