package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/meridianlabs/lendx/pkg/config"
	"github.com/meridianlabs/lendx/pkg/db"
	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/meridianlabs/lendx/pkg/registry"
	"github.com/meridianlabs/lendx/pkg/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	checkpoints map[string]int64

	positionEvents    []*models.PositionEventRow
	liquidationEvents []*models.LiquidationEventRow
	stakeEvents       []*models.StakeEventRow

	// ops records write order so tests can assert commit sequencing.
	ops []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{checkpoints: map[string]int64{}}
}

func (f *fakeStore) GetCheckpoint(_ context.Context, streamID string) (int64, error) {
	return f.checkpoints[streamID], nil
}

func (f *fakeStore) SetCheckpoint(_ context.Context, streamID string, position int64) error {
	if position > f.checkpoints[streamID] {
		f.checkpoints[streamID] = position
	}
	f.ops = append(f.ops, fmt.Sprintf("checkpoint:%d", position))
	return nil
}

func (f *fakeStore) InsertPositionEvents(_ context.Context, rows []*models.PositionEventRow) error {
	f.positionEvents = append(f.positionEvents, rows...)
	if len(rows) > 0 {
		f.ops = append(f.ops, fmt.Sprintf("positions:%d", len(rows)))
	}
	return nil
}

func (f *fakeStore) InsertLiquidationEvents(_ context.Context, rows []*models.LiquidationEventRow) error {
	f.liquidationEvents = append(f.liquidationEvents, rows...)
	return nil
}

func (f *fakeStore) InsertStakeEvents(_ context.Context, rows []*models.StakeEventRow) error {
	f.stakeEvents = append(f.stakeEvents, rows...)
	return nil
}

func (f *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type eventsCall struct {
	page *rpc.EventPage
	err  error
}

type fakeLedger struct {
	latest uint32
	calls  []eventsCall
	reqs   []rpc.GetEventsRequest
}

func (f *fakeLedger) GetLatestLedger(context.Context) (uint32, error) {
	return f.latest, nil
}

func (f *fakeLedger) GetEvents(_ context.Context, req rpc.GetEventsRequest) (*rpc.EventPage, error) {
	f.reqs = append(f.reqs, req)
	if len(f.calls) == 0 {
		return &rpc.EventPage{}, nil
	}
	call := f.calls[0]
	f.calls = f.calls[1:]
	return call.page, call.err
}

func testConfig(contracts int) *config.Config {
	cfg := &config.Config{}
	cfg.Collateral.Symbol = "XLM"
	cfg.Collateral.OracleFeed = "feed:XLM"
	for i := 0; i < contracts; i++ {
		cfg.Assets = append(cfg.Assets, config.Asset{
			Symbol:       fmt.Sprintf("tok%d", i),
			PoolContract: fmt.Sprintf("pool%d", i),
			OracleFeed:   fmt.Sprintf("feed%d", i),
			MinRatioBps:  11000,
		})
	}
	cfg.Indexer.CatchupWindow = 100
	cfg.Indexer.RetentionMargin = 10
	cfg.Indexer.StartLedger = 1
	cfg.Indexer.RangeRetryDelay = time.Millisecond
	return cfg
}

func newIndexer(t *testing.T, store *fakeStore, ledger *fakeLedger, cfg *config.Config) *Indexer {
	t.Helper()
	reg, err := registry.New(cfg)
	require.NoError(t, err)
	return New(zaptest.NewLogger(t), store, ledger, reg, cfg)
}

func positionWire(id, contract string, ledger uint32) rpc.WireEvent {
	payload, _ := json.Marshal(map[string]any{
		"owner":      "GOWNER",
		"collateral": "100",
		"debt":       "50",
		"status":     0,
	})
	return rpc.WireEvent{
		ID:             id,
		ContractID:     contract,
		Ledger:         ledger,
		LedgerClosedAt: time.Now().UTC(),
		Topics:         []string{"position_updated"},
		Value:          payload,
	}
}

func TestRunAdvancesCheckpointThroughRanges(t *testing.T) {
	cfg := testConfig(1)
	store := newFakeStore()
	ledger := &fakeLedger{
		latest: 250,
		calls: []eventsCall{
			{page: &rpc.EventPage{Events: []rpc.WireEvent{positionWire("ev1", "pool0", 5)}}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
		},
	}

	ix := newIndexer(t, store, ledger, cfg)
	require.NoError(t, ix.Run(context.Background()))

	// Three windows of 100 ledgers from 1 to 250.
	require.Equal(t, int64(250), store.checkpoints[db.StreamLedgerEvents])
	require.Len(t, store.positionEvents, 1)
	require.Equal(t, "tok0", store.positionEvents[0].Asset)

	// First window is [1, 100].
	require.Equal(t, uint32(1), ledger.reqs[0].StartLedger)
	require.Equal(t, uint32(100), ledger.reqs[0].EndLedger)
}

func TestRunResumesPastCheckpoint(t *testing.T) {
	cfg := testConfig(1)
	store := newFakeStore()
	store.checkpoints[db.StreamLedgerEvents] = 200
	ledger := &fakeLedger{latest: 250}

	ix := newIndexer(t, store, ledger, cfg)
	require.NoError(t, ix.Run(context.Background()))

	require.Equal(t, uint32(201), ledger.reqs[0].StartLedger)
	require.Equal(t, int64(250), store.checkpoints[db.StreamLedgerEvents])
}

func TestRunNoopWhenCaughtUp(t *testing.T) {
	cfg := testConfig(1)
	store := newFakeStore()
	store.checkpoints[db.StreamLedgerEvents] = 250
	ledger := &fakeLedger{latest: 250}

	ix := newIndexer(t, store, ledger, cfg)
	require.NoError(t, ix.Run(context.Background()))
	require.Empty(t, ledger.reqs)
}

func TestRetentionSelfCorrection(t *testing.T) {
	cfg := testConfig(1)
	store := newFakeStore()
	store.checkpoints[db.StreamLedgerEvents] = 100
	ledger := &fakeLedger{
		latest: 6000,
		calls: []eventsCall{
			{err: &rpc.RangeError{OldestLedger: 5000, Message: "outside retention"}},
			{page: &rpc.EventPage{Events: []rpc.WireEvent{positionWire("ev1", "pool0", 5010)}}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
			{page: &rpc.EventPage{}},
		},
	}

	ix := newIndexer(t, store, ledger, cfg)
	require.NoError(t, ix.Run(context.Background()))

	// Resumed at oldest + margin.
	require.Equal(t, uint32(5010), ledger.reqs[1].StartLedger)
	require.Equal(t, int64(6000), store.checkpoints[db.StreamLedgerEvents])

	// The adjusted checkpoint was persisted before any event insert.
	require.NotEmpty(t, store.ops)
	require.Equal(t, "checkpoint:5009", store.ops[0])
}

func TestPaginationFollowsCursorUntilEmptyPage(t *testing.T) {
	cfg := testConfig(1)
	store := newFakeStore()
	ledger := &fakeLedger{
		latest: 50,
		calls: []eventsCall{
			{page: &rpc.EventPage{
				Events: []rpc.WireEvent{positionWire("ev1", "pool0", 2), positionWire("ev2", "pool0", 3)},
				Cursor: "cursor-1",
			}},
			{page: &rpc.EventPage{
				Events: []rpc.WireEvent{positionWire("ev3", "pool0", 4)},
				Cursor: "cursor-2",
			}},
			{page: &rpc.EventPage{}},
		},
	}

	ix := newIndexer(t, store, ledger, cfg)
	require.NoError(t, ix.Run(context.Background()))

	require.Len(t, store.positionEvents, 3)
	require.Len(t, ledger.reqs, 3)

	// Continuation requests carry only the cursor.
	require.Equal(t, "cursor-1", ledger.reqs[1].Cursor)
	require.Zero(t, ledger.reqs[1].StartLedger)
	require.Equal(t, "cursor-2", ledger.reqs[2].Cursor)
}

func TestUnknownContractAndKindAreSkipped(t *testing.T) {
	cfg := testConfig(1)
	store := newFakeStore()

	unknownKind := positionWire("ev-bad", "pool0", 2)
	unknownKind.Topics = []string{"pool_rebalanced"}

	ledger := &fakeLedger{
		latest: 50,
		calls: []eventsCall{
			{page: &rpc.EventPage{Events: []rpc.WireEvent{
				positionWire("ev1", "unmapped-contract", 2),
				unknownKind,
				positionWire("ev2", "pool0", 3),
			}}},
			{page: &rpc.EventPage{}},
		},
	}

	ix := newIndexer(t, store, ledger, cfg)
	require.NoError(t, ix.Run(context.Background()))

	require.Len(t, store.positionEvents, 1)
	require.Equal(t, "ev2", store.positionEvents[0].EventID)
	require.Equal(t, int64(50), store.checkpoints[db.StreamLedgerEvents])
}

func TestContractBatchesRespectFilterCap(t *testing.T) {
	cfg := testConfig(7)
	store := newFakeStore()
	ledger := &fakeLedger{latest: 10}

	ix := newIndexer(t, store, ledger, cfg)
	require.NoError(t, ix.Run(context.Background()))

	// 7 contracts split into batches of 5 and 2, one empty page each.
	require.Len(t, ledger.reqs, 2)
	require.Len(t, ledger.reqs[0].ContractIDs, 5)
	require.Len(t, ledger.reqs[1].ContractIDs, 2)
}

func TestContractBatches(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	batches := contractBatches(ids, 5)
	require.Len(t, batches, 2)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, batches[0])
	require.Equal(t, []string{"f"}, batches[1])

	require.Empty(t, contractBatches(nil, 5))
	require.Len(t, contractBatches([]string{"a"}, 5), 1)
}
