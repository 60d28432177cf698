package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianlabs/lendx/pkg/db"
	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StakeStore is the slice of the database the stake reconciler uses.
type StakeStore interface {
	GetCheckpoint(ctx context.Context, streamID string) (int64, error)
	SetCheckpoint(ctx context.Context, streamID string, position int64) error
	StakeEventsAfter(ctx context.Context, after time.Time) ([]*models.StakeEventRow, error)
	GetStake(ctx context.Context, asset, owner string) (*models.Stake, error)
	UpsertStake(ctx context.Context, st *models.Stake) (int64, error)
	InsertStakeHistory(ctx context.Context, h *models.StakeHistory) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StakeReconciler folds raw stake events into canonical stakes and the
// stake history, on its own checkpoint stream.
type StakeReconciler struct {
	logger *zap.Logger
	store  StakeStore
}

func NewStakeReconciler(logger *zap.Logger, store StakeStore) *StakeReconciler {
	return &StakeReconciler{
		logger: logger.With(zap.String("component", "stake_reconciler")),
		store:  store,
	}
}

// Run is one scheduler pass.
func (r *StakeReconciler) Run(ctx context.Context) error {
	cp, err := r.store.GetCheckpoint(ctx, db.StreamStakeReconciler)
	if err != nil {
		return err
	}

	events, err := r.store.StakeEventsAfter(ctx, time.UnixMicro(cp).UTC())
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var maxSeen time.Time
	for _, ev := range events {
		if err := r.apply(ctx, ev); err != nil {
			return fmt.Errorf("apply stake event %s: %w", ev.EventID, err)
		}
		if ev.Timestamp.After(maxSeen) {
			maxSeen = ev.Timestamp
		}
	}

	if err := r.store.SetCheckpoint(ctx, db.StreamStakeReconciler, maxSeen.UnixMicro()); err != nil {
		return err
	}

	r.logger.Info("Stakes reconciled", zap.Int("events", len(events)))
	return nil
}

// apply upserts one stake snapshot and appends the classified history row
// in the same transaction. Claimed rewards accumulate onto the lifetime
// total.
func (r *StakeReconciler) apply(ctx context.Context, ev *models.StakeEventRow) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		prev, err := r.store.GetStake(ctx, ev.Asset, ev.OwnerAddress)
		if err != nil {
			return err
		}

		totalClaimed := ev.RewardsClaimed
		if prev != nil {
			totalClaimed = prev.TotalRewardsClaimed.Add(ev.RewardsClaimed)
		}

		id, err := r.store.UpsertStake(ctx, &models.Stake{
			OwnerAddress:        ev.OwnerAddress,
			Asset:               ev.Asset,
			Deposit:             ev.Deposit,
			ProductConstant:     ev.ProductConstant,
			CompoundedConstant:  ev.CompoundedConstant,
			Epoch:               ev.Epoch,
			TotalRewardsClaimed: totalClaimed,
		})
		if err != nil {
			return err
		}

		action, depositDelta, ok := ClassifyStakeChange(prev, ev)
		if !ok {
			// Epoch rollover or constant update; the canonical row is
			// refreshed but there is no user action to record.
			return nil
		}
		return r.store.InsertStakeHistory(ctx, &models.StakeHistory{
			StakeID:      id,
			Asset:        ev.Asset,
			OwnerAddress: ev.OwnerAddress,
			Action:       action,
			Deposit:      ev.Deposit,
			DepositDelta: depositDelta,
			Rewards:      ev.RewardsClaimed,
			Timestamp:    ev.Timestamp,
		})
	})
}

// ClassifyStakeChange names the action one stake snapshot represents:
// first deposit STAKE, claimed rewards CLAIM_REWARDS, full exit UNSTAKE,
// then DEPOSIT or WITHDRAW by deposit direction. A snapshot that changes
// neither the deposit nor claims rewards returns false; no history row
// should be written for it.
func ClassifyStakeChange(prev *models.Stake, ev *models.StakeEventRow) (models.StakeAction, decimal.Decimal, bool) {
	if prev == nil {
		return models.StakeActionStake, ev.Deposit, true
	}

	delta := ev.Deposit.Sub(prev.Deposit)
	switch {
	case ev.RewardsClaimed.IsPositive():
		return models.StakeActionClaimRewards, delta, true
	case delta.IsZero():
		return "", decimal.Zero, false
	case ev.Deposit.IsZero():
		return models.StakeActionUnstake, delta, true
	case delta.IsPositive():
		return models.StakeActionDeposit, delta, true
	default:
		return models.StakeActionWithdraw, delta, true
	}
}
