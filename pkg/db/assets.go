package db

import (
	"context"
	"fmt"

	"github.com/meridianlabs/lendx/pkg/config"
)

// SyncAssets mirrors the configured asset list into the database so that
// operators can join metrics against asset parameters without the config
// file.
func (s *Store) SyncAssets(ctx context.Context, assets []config.Asset) error {
	query := `
		INSERT INTO assets (
			symbol, pool_contract, stake_contract, oracle_feed,
			decimals, min_ratio_bps, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (symbol) DO UPDATE SET
			pool_contract = EXCLUDED.pool_contract,
			stake_contract = EXCLUDED.stake_contract,
			oracle_feed = EXCLUDED.oracle_feed,
			decimals = EXCLUDED.decimals,
			min_ratio_bps = EXCLUDED.min_ratio_bps,
			updated_at = now()
	`
	for _, a := range assets {
		err := s.Exec(ctx, query,
			a.Symbol, a.PoolContract, a.StakeContract, a.OracleFeed,
			a.Decimals, a.MinRatioBps,
		)
		if err != nil {
			return fmt.Errorf("sync asset %s: %w", a.Symbol, err)
		}
	}
	return nil
}
