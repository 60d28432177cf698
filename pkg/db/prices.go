package db

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianlabs/lendx/pkg/db/models"
	"github.com/shopspring/decimal"
)

// InsertPriceSample appends one oracle observation and moves the is_latest
// flag to it. Both statements run in one transaction so the partial unique
// index on (asset) WHERE is_latest never sees two latest rows.
func (s *Store) InsertPriceSample(ctx context.Context, asset string, price decimal.Decimal, sampledAt time.Time) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		clear := `UPDATE price_samples SET is_latest = false WHERE asset = $1 AND is_latest`
		if err := s.Exec(ctx, clear, asset); err != nil {
			return fmt.Errorf("clear latest price %s: %w", asset, err)
		}

		insert := `
			INSERT INTO price_samples (asset, price, sampled_at, is_latest)
			VALUES ($1, $2, $3, true)
		`
		if err := s.Exec(ctx, insert, asset, price, sampledAt); err != nil {
			return fmt.Errorf("insert price sample %s: %w", asset, err)
		}
		return nil
	})
}

// LatestPrice returns the current price sample for an asset, or nil when no
// sample has been recorded yet.
func (s *Store) LatestPrice(ctx context.Context, asset string) (*models.PriceSample, error) {
	query := `
		SELECT id, asset, price, sampled_at, is_latest
		FROM price_samples
		WHERE asset = $1 AND is_latest
	`

	p := &models.PriceSample{}
	err := s.QueryRow(ctx, query, asset).Scan(&p.ID, &p.Asset, &p.Price, &p.Timestamp, &p.IsLatest)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest price %s: %w", asset, err)
	}
	return p, nil
}
