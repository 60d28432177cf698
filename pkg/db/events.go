package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meridianlabs/lendx/pkg/db/models"
)

// Raw event inserts are idempotent: event_id is the primary key and a
// duplicate insert is a no-op. Upstream delivery is at-least-once; storage
// is exactly-once.

// InsertPositionEvents stores a batch of raw position events.
func (s *Store) InsertPositionEvents(ctx context.Context, rows []*models.PositionEventRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO position_events (
			event_id, contract_id, asset, owner_address,
			collateral, debt, accrued_interest, interest_paid,
			status_code, ledger, event_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`
	for _, r := range rows {
		batch.Queue(query,
			r.EventID, r.ContractID, r.Asset, r.OwnerAddress,
			r.Collateral, r.Debt, r.AccruedInterest, r.InterestPaid,
			r.StatusCode, int64(r.Ledger), r.Timestamp,
		)
	}
	return s.executeBatch(ctx, batch)
}

// InsertLiquidationEvents stores a batch of raw liquidation events.
func (s *Store) InsertLiquidationEvents(ctx context.Context, rows []*models.LiquidationEventRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO liquidation_events (
			event_id, contract_id, asset, owner_address,
			collateral_seized, debt_covered, status_code, ledger, event_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`
	for _, r := range rows {
		batch.Queue(query,
			r.EventID, r.ContractID, r.Asset, r.OwnerAddress,
			r.CollateralSeized, r.DebtCovered, r.StatusCode, int64(r.Ledger), r.Timestamp,
		)
	}
	return s.executeBatch(ctx, batch)
}

// InsertStakeEvents stores a batch of raw stake events.
func (s *Store) InsertStakeEvents(ctx context.Context, rows []*models.StakeEventRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO stake_events (
			event_id, contract_id, asset, owner_address,
			deposit, product_constant, compounded_constant, epoch,
			rewards_claimed, ledger, event_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`
	for _, r := range rows {
		batch.Queue(query,
			r.EventID, r.ContractID, r.Asset, r.OwnerAddress,
			r.Deposit, r.ProductConstant, r.CompoundedConstant, r.Epoch,
			r.RewardsClaimed, int64(r.Ledger), r.Timestamp,
		)
	}
	return s.executeBatch(ctx, batch)
}

func (s *Store) executeBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.GetExecutor(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

// PositionEventsAfter returns raw position events strictly newer than the
// given time, oldest first.
func (s *Store) PositionEventsAfter(ctx context.Context, after time.Time) ([]*models.PositionEventRow, error) {
	query := `
		SELECT event_id, contract_id, asset, owner_address,
		       collateral, debt, accrued_interest, interest_paid,
		       status_code, ledger, event_time
		FROM position_events
		WHERE event_time > $1
		ORDER BY event_time, event_id
	`

	rows, err := s.Query(ctx, query, after)
	if err != nil {
		return nil, fmt.Errorf("position events after %s: %w", after, err)
	}
	defer rows.Close()

	var out []*models.PositionEventRow
	for rows.Next() {
		r := &models.PositionEventRow{}
		var ledger int64
		if err := rows.Scan(
			&r.EventID, &r.ContractID, &r.Asset, &r.OwnerAddress,
			&r.Collateral, &r.Debt, &r.AccruedInterest, &r.InterestPaid,
			&r.StatusCode, &ledger, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		r.Ledger = uint32(ledger)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LiquidationEventsAfter returns raw liquidation events strictly newer than
// the given time, oldest first.
func (s *Store) LiquidationEventsAfter(ctx context.Context, after time.Time) ([]*models.LiquidationEventRow, error) {
	query := `
		SELECT event_id, contract_id, asset, owner_address,
		       collateral_seized, debt_covered, status_code, ledger, event_time
		FROM liquidation_events
		WHERE event_time > $1
		ORDER BY event_time, event_id
	`

	rows, err := s.Query(ctx, query, after)
	if err != nil {
		return nil, fmt.Errorf("liquidation events after %s: %w", after, err)
	}
	defer rows.Close()

	var out []*models.LiquidationEventRow
	for rows.Next() {
		r := &models.LiquidationEventRow{}
		var ledger int64
		if err := rows.Scan(
			&r.EventID, &r.ContractID, &r.Asset, &r.OwnerAddress,
			&r.CollateralSeized, &r.DebtCovered, &r.StatusCode, &ledger, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		r.Ledger = uint32(ledger)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StakeEventsAfter returns raw stake events strictly newer than the given
// time, oldest first.
func (s *Store) StakeEventsAfter(ctx context.Context, after time.Time) ([]*models.StakeEventRow, error) {
	query := `
		SELECT event_id, contract_id, asset, owner_address,
		       deposit, product_constant, compounded_constant, epoch,
		       rewards_claimed, ledger, event_time
		FROM stake_events
		WHERE event_time > $1
		ORDER BY event_time, event_id
	`

	rows, err := s.Query(ctx, query, after)
	if err != nil {
		return nil, fmt.Errorf("stake events after %s: %w", after, err)
	}
	defer rows.Close()

	var out []*models.StakeEventRow
	for rows.Next() {
		r := &models.StakeEventRow{}
		var ledger int64
		if err := rows.Scan(
			&r.EventID, &r.ContractID, &r.Asset, &r.OwnerAddress,
			&r.Deposit, &r.ProductConstant, &r.CompoundedConstant, &r.Epoch,
			&r.RewardsClaimed, &ledger, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		r.Ledger = uint32(ledger)
		out = append(out, r)
	}
	return out, rows.Err()
}
