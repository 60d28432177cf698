package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/meridianlabs/lendx/pkg/config"
	"github.com/meridianlabs/lendx/pkg/db"
	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/meridianlabs/lendx/pkg/registry"
	"github.com/meridianlabs/lendx/pkg/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePositionStore struct {
	checkpoints map[string]int64

	events       []*models.PositionEventRow
	liquidations []*models.LiquidationEventRow

	positions map[string]*models.Position
	history   []*models.PositionHistory
	nextID    int64
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{
		checkpoints: map[string]int64{},
		positions:   map[string]*models.Position{},
	}
}

func (f *fakePositionStore) GetCheckpoint(_ context.Context, streamID string) (int64, error) {
	return f.checkpoints[streamID], nil
}

func (f *fakePositionStore) SetCheckpoint(_ context.Context, streamID string, position int64) error {
	if position > f.checkpoints[streamID] {
		f.checkpoints[streamID] = position
	}
	return nil
}

func (f *fakePositionStore) PositionEventsAfter(_ context.Context, after time.Time) ([]*models.PositionEventRow, error) {
	var out []*models.PositionEventRow
	for _, ev := range f.events {
		if ev.Timestamp.After(after) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakePositionStore) LiquidationEventsAfter(_ context.Context, after time.Time) ([]*models.LiquidationEventRow, error) {
	var out []*models.LiquidationEventRow
	for _, ev := range f.liquidations {
		if ev.Timestamp.After(after) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakePositionStore) GetPosition(_ context.Context, asset, owner string) (*models.Position, error) {
	p, ok := f.positions[asset+"/"+owner]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePositionStore) UpsertPosition(_ context.Context, p *models.Position) (int64, error) {
	key := p.Asset + "/" + p.OwnerAddress
	if existing, ok := f.positions[key]; ok {
		p.ID = existing.ID
	} else {
		f.nextID++
		p.ID = f.nextID
	}
	f.positions[key] = p
	return p.ID, nil
}

func (f *fakePositionStore) UpdatePositionStatus(_ context.Context, id int64, status models.PositionStatus) error {
	for _, p := range f.positions {
		if p.ID == id {
			p.Status = status
		}
	}
	return nil
}

func (f *fakePositionStore) InsertPositionHistory(_ context.Context, h *models.PositionHistory) error {
	f.history = append(f.history, h)
	return nil
}

func (f *fakePositionStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeInvoker struct {
	calls  []string
	result rpc.InvokeResult
}

func (f *fakeInvoker) Invoke(_ context.Context, contractID, method string, args []string) (rpc.InvokeResult, error) {
	f.calls = append(f.calls, contractID+"/"+method+"/"+args[0])
	return f.result, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := &config.Config{}
	cfg.Collateral.Symbol = "XLM"
	cfg.Collateral.OracleFeed = "feed:XLM"
	cfg.Assets = []config.Asset{{
		Symbol:       "yUSD",
		PoolContract: "CPOOL",
		OracleFeed:   "feed:yUSD",
		MinRatioBps:  11000,
	}}
	reg, err := registry.New(cfg)
	require.NoError(t, err)
	return reg
}

func snapshotEvent(id string, at time.Time, collateral, debt, interestPaid string) *models.PositionEventRow {
	return &models.PositionEventRow{
		EventID:         id,
		ContractID:      "CPOOL",
		Asset:           "yUSD",
		OwnerAddress:    "GOWNER",
		Collateral:      decimal.RequireFromString(collateral),
		Debt:            decimal.RequireFromString(debt),
		AccruedInterest: decimal.Zero,
		InterestPaid:    decimal.RequireFromString(interestPaid),
		StatusCode:      0,
		Ledger:          10,
		Timestamp:       at,
	}
}

func TestReconcilerOpensThenClassifiesDeltas(t *testing.T) {
	store := newFakePositionStore()
	base := time.Now().UTC().Truncate(time.Microsecond)
	store.events = []*models.PositionEventRow{
		snapshotEvent("ev1", base.Add(1*time.Second), "1000", "500", "0"),
		snapshotEvent("ev2", base.Add(2*time.Second), "1500", "500", "0"),
		snapshotEvent("ev3", base.Add(3*time.Second), "1500", "700", "0"),
		snapshotEvent("ev4", base.Add(4*time.Second), "1500", "600", "0"),
		snapshotEvent("ev5", base.Add(5*time.Second), "1500", "600", "25"),
	}

	r := NewPositionReconciler(zaptest.NewLogger(t), store, &fakeInvoker{}, testRegistry(t))
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, store.history, 5)
	actions := make([]models.HistoryAction, 0, 5)
	for _, h := range store.history {
		actions = append(actions, h.Action)
	}
	require.Equal(t, []models.HistoryAction{
		models.ActionOpen,
		models.ActionAddCollateral,
		models.ActionBorrow,
		models.ActionRepay,
		models.ActionPayInterest,
	}, actions)

	// The canonical row holds the last snapshot.
	p := store.positions["yUSD/GOWNER"]
	require.True(t, p.Collateral.Equal(decimal.NewFromInt(1500)))
	require.True(t, p.Debt.Equal(decimal.NewFromInt(600)))

	// Checkpoint is the newest processed event's timestamp.
	require.Equal(t, base.Add(5*time.Second).UnixMicro(), store.checkpoints[db.StreamPositionReconciler])
}

func TestReconcilerIsIncrementalAcrossPasses(t *testing.T) {
	store := newFakePositionStore()
	base := time.Now().UTC().Truncate(time.Microsecond)
	store.events = []*models.PositionEventRow{
		snapshotEvent("ev1", base.Add(time.Second), "1000", "500", "0"),
	}

	r := NewPositionReconciler(zaptest.NewLogger(t), store, &fakeInvoker{}, testRegistry(t))
	require.NoError(t, r.Run(context.Background()))
	require.Len(t, store.history, 1)

	// Re-running without new events is a no-op: the checkpoint excludes
	// everything already folded in.
	require.NoError(t, r.Run(context.Background()))
	require.Len(t, store.history, 1)

	store.events = append(store.events,
		snapshotEvent("ev2", base.Add(2*time.Second), "1000", "400", "0"))
	require.NoError(t, r.Run(context.Background()))
	require.Len(t, store.history, 2)
	require.Equal(t, models.ActionRepay, store.history[1].Action)
}

func TestInsolventLiquidationEventFreezesPosition(t *testing.T) {
	store := newFakePositionStore()
	base := time.Now().UTC().Truncate(time.Microsecond)
	store.positions["yUSD/GOWNER"] = &models.Position{
		ID: 1, Asset: "yUSD", OwnerAddress: "GOWNER",
		Collateral: decimal.NewFromInt(1000), Debt: decimal.NewFromInt(950),
		Status: models.StatusOpen,
	}
	store.nextID = 1
	store.liquidations = []*models.LiquidationEventRow{{
		EventID: "liq1", ContractID: "CPOOL", Asset: "yUSD", OwnerAddress: "GOWNER",
		CollateralSeized: decimal.Zero, DebtCovered: decimal.Zero,
		StatusCode: 1, Ledger: 20, Timestamp: base.Add(time.Second),
	}}

	inv := &fakeInvoker{result: rpc.InvokeResult{Status: rpc.InvokeSuccess}}
	r := NewPositionReconciler(zaptest.NewLogger(t), store, inv, testRegistry(t))
	require.NoError(t, r.Run(context.Background()))

	require.Equal(t, []string{"CPOOL/freeze_position/GOWNER"}, inv.calls)
	require.Equal(t, models.StatusFrozen, store.positions["yUSD/GOWNER"].Status)
	require.Len(t, store.history, 1)
	require.Equal(t, models.ActionFreeze, store.history[0].Action)
}

func TestFrozenLiquidationEventClosesPosition(t *testing.T) {
	store := newFakePositionStore()
	base := time.Now().UTC().Truncate(time.Microsecond)
	store.positions["yUSD/GOWNER"] = &models.Position{
		ID: 1, Asset: "yUSD", OwnerAddress: "GOWNER",
		Collateral: decimal.NewFromInt(1000), Debt: decimal.NewFromInt(950),
		Status: models.StatusFrozen,
	}
	store.nextID = 1
	store.liquidations = []*models.LiquidationEventRow{{
		EventID: "liq1", ContractID: "CPOOL", Asset: "yUSD", OwnerAddress: "GOWNER",
		CollateralSeized: decimal.NewFromInt(1000), DebtCovered: decimal.NewFromInt(950),
		StatusCode: 2, Ledger: 20, Timestamp: base.Add(time.Second),
	}}

	// The monitor froze this position first; the on-chain liquidate call
	// is rejected, which must not stop the local bookkeeping.
	inv := &fakeInvoker{result: rpc.InvokeResult{Status: rpc.InvokeFailed, Detail: "already liquidated"}}
	r := NewPositionReconciler(zaptest.NewLogger(t), store, inv, testRegistry(t))
	require.NoError(t, r.Run(context.Background()))

	require.Equal(t, models.StatusClosed, store.positions["yUSD/GOWNER"].Status)
	require.Len(t, store.history, 1)
	h := store.history[0]
	require.Equal(t, models.ActionLiquidate, h.Action)
	require.True(t, h.CollateralDelta.Equal(decimal.NewFromInt(-1000)))
	require.True(t, h.DebtDelta.Equal(decimal.NewFromInt(-950)))
}

func TestClassifyPositionChange(t *testing.T) {
	prev := &models.Position{
		Collateral:   decimal.NewFromInt(100),
		Debt:         decimal.NewFromInt(50),
		InterestPaid: decimal.NewFromInt(5),
	}

	cases := []struct {
		name       string
		prev       *models.Position
		collateral string
		debt       string
		interest   string
		action     models.HistoryAction
		recorded   bool
	}{
		{"open", nil, "100", "50", "0", models.ActionOpen, true},
		{"add collateral", prev, "150", "50", "5", models.ActionAddCollateral, true},
		{"withdraw collateral", prev, "80", "50", "5", models.ActionWithdrawCollateral, true},
		{"borrow", prev, "100", "70", "5", models.ActionBorrow, true},
		{"repay", prev, "100", "30", "5", models.ActionRepay, true},
		{"pay interest", prev, "100", "50", "9", models.ActionPayInterest, true},
		{"no classified change", prev, "100", "50", "5", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := &models.PositionEventRow{
				Collateral:   decimal.RequireFromString(tc.collateral),
				Debt:         decimal.RequireFromString(tc.debt),
				InterestPaid: decimal.RequireFromString(tc.interest),
			}
			action, _, ok := ClassifyPositionChange(tc.prev, ev)
			require.Equal(t, tc.recorded, ok)
			if tc.recorded {
				require.Equal(t, tc.action, action)
			}
		})
	}
}
