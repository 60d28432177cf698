package db

import "context"

func (s *Store) initCheckpoints(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			stream_id TEXT PRIMARY KEY,
			last_position BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initPositionEvents(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS position_events (
			event_id TEXT PRIMARY KEY,
			contract_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			owner_address TEXT NOT NULL,
			collateral NUMERIC NOT NULL DEFAULT 0,
			debt NUMERIC NOT NULL DEFAULT 0,
			accrued_interest NUMERIC NOT NULL DEFAULT 0,
			interest_paid NUMERIC NOT NULL DEFAULT 0,
			status_code INTEGER NOT NULL DEFAULT 0,
			ledger BIGINT NOT NULL,
			event_time TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_position_events_time ON position_events(event_time);
		CREATE INDEX IF NOT EXISTS idx_position_events_asset ON position_events(asset);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initLiquidationEvents(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS liquidation_events (
			event_id TEXT PRIMARY KEY,
			contract_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			owner_address TEXT NOT NULL,
			collateral_seized NUMERIC NOT NULL DEFAULT 0,
			debt_covered NUMERIC NOT NULL DEFAULT 0,
			status_code INTEGER NOT NULL DEFAULT 0,
			ledger BIGINT NOT NULL,
			event_time TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_liquidation_events_time ON liquidation_events(event_time);
		CREATE INDEX IF NOT EXISTS idx_liquidation_events_asset ON liquidation_events(asset);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initStakeEvents(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS stake_events (
			event_id TEXT PRIMARY KEY,
			contract_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			owner_address TEXT NOT NULL,
			deposit NUMERIC NOT NULL DEFAULT 0,
			product_constant NUMERIC NOT NULL DEFAULT 0,
			compounded_constant NUMERIC NOT NULL DEFAULT 0,
			epoch BIGINT NOT NULL DEFAULT 0,
			rewards_claimed NUMERIC NOT NULL DEFAULT 0,
			ledger BIGINT NOT NULL,
			event_time TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_stake_events_time ON stake_events(event_time);
		CREATE INDEX IF NOT EXISTS idx_stake_events_asset ON stake_events(asset);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initPositions(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS positions (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			owner_address TEXT NOT NULL,
			asset TEXT NOT NULL,
			collateral NUMERIC NOT NULL DEFAULT 0,
			debt NUMERIC NOT NULL DEFAULT 0,
			accrued_interest NUMERIC NOT NULL DEFAULT 0,
			interest_paid NUMERIC NOT NULL DEFAULT 0,
			last_interest_time TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			UNIQUE (asset, owner_address)
		);

		CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
		CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions(owner_address);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initPositionHistory(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS position_history (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			position_id BIGINT NOT NULL,
			asset TEXT NOT NULL,
			owner_address TEXT NOT NULL,
			action TEXT NOT NULL,
			collateral NUMERIC NOT NULL DEFAULT 0,
			debt NUMERIC NOT NULL DEFAULT 0,
			collateral_delta NUMERIC NOT NULL DEFAULT 0,
			debt_delta NUMERIC NOT NULL DEFAULT 0,
			interest_delta NUMERIC NOT NULL DEFAULT 0,
			event_time TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_position_history_position ON position_history(position_id);
		CREATE INDEX IF NOT EXISTS idx_position_history_owner ON position_history(owner_address);
		CREATE INDEX IF NOT EXISTS idx_position_history_action_time ON position_history(action, event_time);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initStakes(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS stakes (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			owner_address TEXT NOT NULL,
			asset TEXT NOT NULL,
			deposit NUMERIC NOT NULL DEFAULT 0,
			product_constant NUMERIC NOT NULL DEFAULT 0,
			compounded_constant NUMERIC NOT NULL DEFAULT 0,
			epoch BIGINT NOT NULL DEFAULT 0,
			total_rewards_claimed NUMERIC NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			UNIQUE (asset, owner_address)
		);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initStakeHistory(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS stake_history (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			stake_id BIGINT NOT NULL,
			asset TEXT NOT NULL,
			owner_address TEXT NOT NULL,
			action TEXT NOT NULL,
			deposit NUMERIC NOT NULL DEFAULT 0,
			deposit_delta NUMERIC NOT NULL DEFAULT 0,
			rewards NUMERIC NOT NULL DEFAULT 0,
			event_time TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_stake_history_stake ON stake_history(stake_id);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initPriceSamples(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS price_samples (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			asset TEXT NOT NULL,
			price NUMERIC NOT NULL,
			sampled_at TIMESTAMP WITH TIME ZONE NOT NULL,
			is_latest BOOLEAN NOT NULL DEFAULT false
		);

		CREATE INDEX IF NOT EXISTS idx_price_samples_asset_time ON price_samples(asset, sampled_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_price_samples_latest
			ON price_samples(asset) WHERE is_latest;
	`
	return s.Exec(ctx, query)
}

func (s *Store) initAssetHealthMetrics(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS asset_health_metrics (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			asset TEXT NOT NULL,
			health_score BIGINT NOT NULL,
			open_positions BIGINT NOT NULL,
			avg_ratio_bps BIGINT NOT NULL,
			critical_count BIGINT NOT NULL,
			warning_count BIGINT NOT NULL,
			near_liquidation_count BIGINT NOT NULL DEFAULT 0,
			recent_freezes BIGINT NOT NULL,
			total_collateral NUMERIC NOT NULL DEFAULT 0,
			total_debt NUMERIC NOT NULL DEFAULT 0,
			histogram JSONB NOT NULL DEFAULT '[]',
			captured_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_asset_health_asset_time ON asset_health_metrics(asset, captured_at);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initUserRiskProfiles(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS user_risk_profiles (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			owner_address TEXT NOT NULL,
			risk_score BIGINT NOT NULL,
			liquidation_score BIGINT NOT NULL,
			collateral_score BIGINT NOT NULL,
			age_score BIGINT NOT NULL,
			activity_score BIGINT NOT NULL,
			captured_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_user_risk_owner_time ON user_risk_profiles(owner_address, captured_at);
	`
	return s.Exec(ctx, query)
}

func (s *Store) initAssets(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS assets (
			symbol TEXT PRIMARY KEY,
			pool_contract TEXT NOT NULL,
			stake_contract TEXT NOT NULL DEFAULT '',
			oracle_feed TEXT NOT NULL,
			decimals INTEGER NOT NULL DEFAULT 7,
			min_ratio_bps BIGINT NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
	`
	return s.Exec(ctx, query)
}
