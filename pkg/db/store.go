package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the durable state of the service: checkpoints, raw events,
// canonical positions/stakes, history, price samples and metrics snapshots.
// It is constructed once in main and passed by reference into every
// component.
type Store struct {
	*Client
}

// NewStore connects and ensures the schema exists.
func NewStore(ctx context.Context, logger *zap.Logger) (*Store, error) {
	client, err := NewClient(ctx, logger, DefaultPoolConfig())
	if err != nil {
		return nil, err
	}

	s := &Store{Client: client}
	if err := s.InitializeDB(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// InitializeDB ensures required tables exist. Tables are created in
// parallel; each init is idempotent.
func (s *Store) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"checkpoints", s.initCheckpoints},
		{"position_events", s.initPositionEvents},
		{"liquidation_events", s.initLiquidationEvents},
		{"stake_events", s.initStakeEvents},
		{"positions", s.initPositions},
		{"position_history", s.initPositionHistory},
		{"stakes", s.initStakes},
		{"stake_history", s.initStakeHistory},
		{"price_samples", s.initPriceSamples},
		{"asset_health_metrics", s.initAssetHealthMetrics},
		{"user_risk_profiles", s.initUserRiskProfiles},
		{"assets", s.initAssets},
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(initOps))

	for _, op := range initOps {
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("init %s: %w", name, err)
			}
		}(op.name, op.fn)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}

	s.Logger.Info("Database initialized",
		zap.Duration("duration", time.Since(initStart)))
	return nil
}
