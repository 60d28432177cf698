package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridianlabs/lendx/pkg/config"
	"github.com/meridianlabs/lendx/pkg/db"
	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/meridianlabs/lendx/pkg/registry"
	"github.com/meridianlabs/lendx/pkg/retry"
	"github.com/meridianlabs/lendx/pkg/rpc"
	"go.uber.org/zap"
)

// Store is the slice of the database the indexer writes to.
type Store interface {
	GetCheckpoint(ctx context.Context, streamID string) (int64, error)
	SetCheckpoint(ctx context.Context, streamID string, position int64) error
	InsertPositionEvents(ctx context.Context, rows []*models.PositionEventRow) error
	InsertLiquidationEvents(ctx context.Context, rows []*models.LiquidationEventRow) error
	InsertStakeEvents(ctx context.Context, rows []*models.StakeEventRow) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Indexer pulls contract events from the upstream node in ledger ranges and
// lands them as raw rows. The checkpoint row is the single commit point: it
// advances to a range's end ledger in the same transaction as the range's
// events, so a crash anywhere replays at most one range, and replays are
// absorbed by the event_id conflict clause.
type Indexer struct {
	logger *zap.Logger
	store  Store
	ledger rpc.LedgerClient
	reg    *registry.Registry

	startLedger     uint32
	catchupWindow   uint32
	retentionMargin uint32
	rangeRetryDelay time.Duration
}

func New(logger *zap.Logger, store Store, ledger rpc.LedgerClient, reg *registry.Registry, cfg *config.Config) *Indexer {
	return &Indexer{
		logger:          logger.With(zap.String("component", "indexer")),
		store:           store,
		ledger:          ledger,
		reg:             reg,
		startLedger:     cfg.Indexer.StartLedger,
		catchupWindow:   cfg.Indexer.CatchupWindow,
		retentionMargin: cfg.Indexer.RetentionMargin,
		rangeRetryDelay: cfg.Indexer.RangeRetryDelay,
	}
}

// Run is one scheduler pass: process every ledger from the checkpoint up to
// the current chain tip, range by range. During catchup this loops many
// windows; once live each pass covers the handful of ledgers closed since
// the previous tick.
func (ix *Indexer) Run(ctx context.Context) error {
	var latest uint32
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), ix.logger, "get_latest_ledger", func() error {
		var err error
		latest, err = ix.ledger.GetLatestLedger(ctx)
		return err
	})
	if err != nil {
		return err
	}

	start, err := ix.resumeLedger(ctx, latest)
	if err != nil {
		return err
	}
	if start > latest {
		return nil
	}

	for start <= latest {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := start + ix.catchupWindow - 1
		if end > latest {
			end = latest
		}

		if err := ix.processRange(ctx, start, end); err != nil {
			if re, ok := rpc.AsRangeError(err); ok {
				start, err = ix.skipPastRetention(ctx, re)
				if err != nil {
					return err
				}
				continue
			}

			ix.logger.Warn("Range failed, retrying after delay",
				zap.Uint32("start", start),
				zap.Uint32("end", end),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ix.rangeRetryDelay):
			}
			continue
		}

		start = end + 1
	}
	return nil
}

// resumeLedger determines where this pass begins: one past the checkpoint,
// or the configured start ledger (falling back to the chain tip) when the
// stream has never run.
func (ix *Indexer) resumeLedger(ctx context.Context, latest uint32) (uint32, error) {
	cp, err := ix.store.GetCheckpoint(ctx, db.StreamLedgerEvents)
	if err != nil {
		return 0, err
	}
	if cp > 0 {
		return uint32(cp) + 1, nil
	}
	if ix.startLedger > 0 {
		return ix.startLedger, nil
	}
	return latest, nil
}

// skipPastRetention handles a start ledger that has aged out of the node's
// retention window. The checkpoint is persisted to the adjusted position
// before any event from the new start is processed, so a crash mid-range
// cannot re-enter the pruned region.
func (ix *Indexer) skipPastRetention(ctx context.Context, re *rpc.RangeError) (uint32, error) {
	adjusted := re.OldestLedger + ix.retentionMargin

	ix.logger.Warn("Checkpoint behind retention window, skipping forward",
		zap.Uint32("oldest_retained", re.OldestLedger),
		zap.Uint32("resume_at", adjusted))

	if err := ix.store.SetCheckpoint(ctx, db.StreamLedgerEvents, int64(adjusted-1)); err != nil {
		return 0, fmt.Errorf("persist adjusted checkpoint: %w", err)
	}
	return adjusted, nil
}

// processRange fetches every event for [start, end] across all contract
// filter batches, then commits the rows together with the checkpoint
// advance in one transaction.
func (ix *Indexer) processRange(ctx context.Context, start, end uint32) error {
	var (
		positions    []*models.PositionEventRow
		liquidations []*models.LiquidationEventRow
		stakes       []*models.StakeEventRow
	)

	for _, batch := range contractBatches(ix.reg.Contracts(), rpc.MaxContractsPerFilter) {
		if err := ix.fetchBatch(ctx, start, end, batch, &positions, &liquidations, &stakes); err != nil {
			return err
		}
	}

	err := ix.store.InTx(ctx, func(ctx context.Context) error {
		if err := ix.store.InsertPositionEvents(ctx, positions); err != nil {
			return err
		}
		if err := ix.store.InsertLiquidationEvents(ctx, liquidations); err != nil {
			return err
		}
		if err := ix.store.InsertStakeEvents(ctx, stakes); err != nil {
			return err
		}
		return ix.store.SetCheckpoint(ctx, db.StreamLedgerEvents, int64(end))
	})
	if err != nil {
		return fmt.Errorf("commit range [%d, %d]: %w", start, end, err)
	}

	if n := len(positions) + len(liquidations) + len(stakes); n > 0 {
		ix.logger.Info("Range indexed",
			zap.Uint32("start", start),
			zap.Uint32("end", end),
			zap.Int("events", n))
	}
	return nil
}

// fetchBatch pages through one contract filter batch for the range. The
// first request carries the ledger bounds; continuations carry only the
// cursor. An empty page ends the stream.
func (ix *Indexer) fetchBatch(ctx context.Context, start, end uint32, contracts []string,
	positions *[]*models.PositionEventRow, liquidations *[]*models.LiquidationEventRow, stakes *[]*models.StakeEventRow) error {

	req := rpc.GetEventsRequest{StartLedger: start, EndLedger: end, ContractIDs: contracts}
	for {
		var page *rpc.EventPage
		err := retry.WithBackoff(ctx, retry.DefaultConfig(), ix.logger, "get_events", func() error {
			p, err := ix.ledger.GetEvents(ctx, req)
			if err != nil {
				if _, ok := rpc.AsRangeError(err); ok {
					return &retry.Permanent{Err: err}
				}
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return err
		}

		if len(page.Events) == 0 {
			return nil
		}

		for _, w := range page.Events {
			ix.collect(w, positions, liquidations, stakes)
		}

		last := page.Events[len(page.Events)-1]
		cursor := page.Cursor
		if cursor == "" {
			cursor = last.ID
		}
		req = rpc.GetEventsRequest{Cursor: cursor}
	}
}

// collect decodes one wire event and appends it to the matching row slice.
// Events from unmapped contracts or with unknown kinds are logged and
// dropped; they never fail the range.
func (ix *Indexer) collect(w rpc.WireEvent,
	positions *[]*models.PositionEventRow, liquidations *[]*models.LiquidationEventRow, stakes *[]*models.StakeEventRow) {

	asset, ok := ix.reg.ByContract(w.ContractID)
	if !ok {
		ix.logger.Warn("Event from unmapped contract, skipping",
			zap.String("event_id", w.ID),
			zap.String("contract_id", w.ContractID))
		return
	}

	ev, err := rpc.Decode(w)
	if err != nil {
		if errors.Is(err, rpc.ErrUnknownKind) {
			ix.logger.Warn("Unknown event kind, skipping",
				zap.String("event_id", w.ID),
				zap.Error(err))
			return
		}
		ix.logger.Warn("Undecodable event, skipping",
			zap.String("event_id", w.ID),
			zap.Error(err))
		return
	}

	switch e := ev.(type) {
	case *rpc.PositionEvent:
		*positions = append(*positions, &models.PositionEventRow{
			EventID:         e.EventMeta.ID,
			ContractID:      e.EventMeta.ContractID,
			Asset:           asset.Symbol,
			OwnerAddress:    e.Owner,
			Collateral:      e.Collateral,
			Debt:            e.Debt,
			AccruedInterest: e.AccruedInterest,
			InterestPaid:    e.InterestPaid,
			StatusCode:      e.StatusCode,
			Ledger:          e.EventMeta.Ledger,
			Timestamp:       e.EventMeta.Timestamp,
		})
	case *rpc.LiquidationEvent:
		*liquidations = append(*liquidations, &models.LiquidationEventRow{
			EventID:          e.EventMeta.ID,
			ContractID:       e.EventMeta.ContractID,
			Asset:            asset.Symbol,
			OwnerAddress:     e.Owner,
			CollateralSeized: e.CollateralSeized,
			DebtCovered:      e.DebtCovered,
			StatusCode:       e.StatusCode,
			Ledger:           e.EventMeta.Ledger,
			Timestamp:        e.EventMeta.Timestamp,
		})
	case *rpc.StakeEvent:
		*stakes = append(*stakes, &models.StakeEventRow{
			EventID:            e.EventMeta.ID,
			ContractID:         e.EventMeta.ContractID,
			Asset:              asset.Symbol,
			OwnerAddress:       e.Owner,
			Deposit:            e.Deposit,
			ProductConstant:    e.ProductConstant,
			CompoundedConstant: e.CompoundedConstant,
			Epoch:              e.Epoch,
			RewardsClaimed:     e.RewardsClaimed,
			Ledger:             e.EventMeta.Ledger,
			Timestamp:          e.EventMeta.Timestamp,
		})
	}
}

// contractBatches partitions ids into slices of at most size.
func contractBatches(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
