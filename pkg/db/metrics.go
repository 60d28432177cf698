package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meridianlabs/lendx/pkg/db/models"
)

// InsertAssetHealthMetrics appends one health snapshot for an asset.
func (s *Store) InsertAssetHealthMetrics(ctx context.Context, m *models.AssetHealthMetrics) error {
	histogram, err := json.Marshal(m.Histogram)
	if err != nil {
		return fmt.Errorf("marshal histogram %s: %w", m.Asset, err)
	}

	query := `
		INSERT INTO asset_health_metrics (
			asset, health_score, open_positions, avg_ratio_bps,
			critical_count, warning_count, near_liquidation_count,
			recent_freezes, total_collateral, total_debt, histogram,
			captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	err = s.Exec(ctx, query,
		m.Asset, m.HealthScore, m.OpenPositions, m.AvgRatioBps,
		m.CriticalCount, m.WarningCount, m.NearLiquidationCount,
		m.RecentFreezes, m.TotalCollateral, m.TotalDebt, histogram,
		m.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert health metrics %s: %w", m.Asset, err)
	}
	return nil
}

// LatestAssetHealthMetrics returns the newest snapshot for an asset, or nil
// when none exists.
func (s *Store) LatestAssetHealthMetrics(ctx context.Context, asset string) (*models.AssetHealthMetrics, error) {
	query := `
		SELECT id, asset, health_score, open_positions, avg_ratio_bps,
		       critical_count, warning_count, near_liquidation_count,
		       recent_freezes, total_collateral, total_debt, histogram,
		       captured_at
		FROM asset_health_metrics
		WHERE asset = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`

	m := &models.AssetHealthMetrics{}
	var histogram []byte
	err := s.QueryRow(ctx, query, asset).Scan(
		&m.ID, &m.Asset, &m.HealthScore, &m.OpenPositions, &m.AvgRatioBps,
		&m.CriticalCount, &m.WarningCount, &m.NearLiquidationCount,
		&m.RecentFreezes, &m.TotalCollateral, &m.TotalDebt, &histogram,
		&m.CapturedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest health metrics %s: %w", asset, err)
	}
	if err := json.Unmarshal(histogram, &m.Histogram); err != nil {
		return nil, fmt.Errorf("unmarshal histogram %s: %w", asset, err)
	}
	return m, nil
}

// InsertUserRiskProfile appends one composite risk snapshot for an owner.
func (s *Store) InsertUserRiskProfile(ctx context.Context, p *models.UserRiskProfile) error {
	query := `
		INSERT INTO user_risk_profiles (
			owner_address, risk_score, liquidation_score,
			collateral_score, age_score, activity_score, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	err := s.Exec(ctx, query,
		p.OwnerAddress, p.RiskScore, p.LiquidationScore,
		p.CollateralScore, p.AgeScore, p.ActivityScore, p.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert risk profile %s: %w", p.OwnerAddress, err)
	}
	return nil
}

// LatestUserRiskProfile returns the newest risk snapshot for an owner, or
// nil when none exists.
func (s *Store) LatestUserRiskProfile(ctx context.Context, owner string) (*models.UserRiskProfile, error) {
	query := `
		SELECT id, owner_address, risk_score, liquidation_score,
		       collateral_score, age_score, activity_score, captured_at
		FROM user_risk_profiles
		WHERE owner_address = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`

	p := &models.UserRiskProfile{}
	err := s.QueryRow(ctx, query, owner).Scan(
		&p.ID, &p.OwnerAddress, &p.RiskScore, &p.LiquidationScore,
		&p.CollateralScore, &p.AgeScore, &p.ActivityScore, &p.CapturedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest risk profile %s: %w", owner, err)
	}
	return p, nil
}
