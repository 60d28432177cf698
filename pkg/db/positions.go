package db

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianlabs/lendx/pkg/db/models"
)

// GetPosition returns the position for (asset, owner), or nil when none
// exists.
func (s *Store) GetPosition(ctx context.Context, asset, owner string) (*models.Position, error) {
	query := `
		SELECT id, owner_address, asset, collateral, debt,
		       accrued_interest, interest_paid, last_interest_time,
		       status, created_at, updated_at
		FROM positions
		WHERE asset = $1 AND owner_address = $2
	`

	p := &models.Position{}
	err := s.QueryRow(ctx, query, asset, owner).Scan(
		&p.ID, &p.OwnerAddress, &p.Asset, &p.Collateral, &p.Debt,
		&p.AccruedInterest, &p.InterestPaid, &p.LastInterest,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get position %s/%s: %w", asset, owner, err)
	}
	return p, nil
}

// ActivePositionsByAsset returns positions still exposed to liquidation,
// i.e. open or insolvent.
func (s *Store) ActivePositionsByAsset(ctx context.Context, asset string) ([]*models.Position, error) {
	query := `
		SELECT id, owner_address, asset, collateral, debt,
		       accrued_interest, interest_paid, last_interest_time,
		       status, created_at, updated_at
		FROM positions
		WHERE asset = $1 AND status IN ('open', 'insolvent')
		ORDER BY id
	`
	return s.queryPositions(ctx, query, asset)
}

// PositionsByOwner returns every position an owner holds across assets.
func (s *Store) PositionsByOwner(ctx context.Context, owner string) ([]*models.Position, error) {
	query := `
		SELECT id, owner_address, asset, collateral, debt,
		       accrued_interest, interest_paid, last_interest_time,
		       status, created_at, updated_at
		FROM positions
		WHERE owner_address = $1
		ORDER BY asset
	`
	return s.queryPositions(ctx, query, owner)
}

func (s *Store) queryPositions(ctx context.Context, query string, args ...any) ([]*models.Position, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		p := &models.Position{}
		if err := rows.Scan(
			&p.ID, &p.OwnerAddress, &p.Asset, &p.Collateral, &p.Debt,
			&p.AccruedInterest, &p.InterestPaid, &p.LastInterest,
			&p.Status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPosition writes the canonical row for (asset, owner) and returns
// its id. Existing rows keep their created_at.
func (s *Store) UpsertPosition(ctx context.Context, p *models.Position) (int64, error) {
	query := `
		INSERT INTO positions (
			owner_address, asset, collateral, debt,
			accrued_interest, interest_paid, last_interest_time,
			status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (asset, owner_address) DO UPDATE SET
			collateral = EXCLUDED.collateral,
			debt = EXCLUDED.debt,
			accrued_interest = EXCLUDED.accrued_interest,
			interest_paid = EXCLUDED.interest_paid,
			last_interest_time = EXCLUDED.last_interest_time,
			status = EXCLUDED.status,
			updated_at = now()
		RETURNING id
	`

	var id int64
	err := s.QueryRow(ctx, query,
		p.OwnerAddress, p.Asset, p.Collateral, p.Debt,
		p.AccruedInterest, p.InterestPaid, p.LastInterest, p.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert position %s/%s: %w", p.Asset, p.OwnerAddress, err)
	}
	return id, nil
}

// UpdatePositionStatus moves a position to a new lifecycle status.
func (s *Store) UpdatePositionStatus(ctx context.Context, id int64, status models.PositionStatus) error {
	query := `UPDATE positions SET status = $2, updated_at = now() WHERE id = $1`
	if err := s.Exec(ctx, query, id, status); err != nil {
		return fmt.Errorf("update position %d status: %w", id, err)
	}
	return nil
}

// InsertPositionHistory appends one transition row.
func (s *Store) InsertPositionHistory(ctx context.Context, h *models.PositionHistory) error {
	query := `
		INSERT INTO position_history (
			position_id, asset, owner_address, action,
			collateral, debt, collateral_delta, debt_delta,
			interest_delta, event_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	err := s.Exec(ctx, query,
		h.PositionID, h.Asset, h.OwnerAddress, h.Action,
		h.Collateral, h.Debt, h.CollateralDelta, h.DebtDelta,
		h.InterestDelta, h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert position history %s/%s: %w", h.Asset, h.OwnerAddress, err)
	}
	return nil
}

// LiquidationCounts returns an owner's liquidation totals: rows since the
// given time, and lifetime.
func (s *Store) LiquidationCounts(ctx context.Context, owner string, since time.Time) (recent, lifetime int64, err error) {
	query := `
		SELECT count(*) FILTER (WHERE event_time > $2), count(*)
		FROM position_history
		WHERE owner_address = $1 AND action = 'LIQUIDATE'
	`
	if err := s.QueryRow(ctx, query, owner, since).Scan(&recent, &lifetime); err != nil {
		return 0, 0, fmt.Errorf("liquidation counts %s: %w", owner, err)
	}
	return recent, lifetime, nil
}

// FreezeCountByAsset returns FREEZE transitions per asset since the given
// time.
func (s *Store) FreezeCountByAsset(ctx context.Context, asset string, since time.Time) (int64, error) {
	query := `
		SELECT count(*)
		FROM position_history
		WHERE asset = $1 AND action = 'FREEZE' AND event_time > $2
	`
	var n int64
	if err := s.QueryRow(ctx, query, asset, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("freeze count %s: %w", asset, err)
	}
	return n, nil
}

// FirstActivityTime returns the oldest history timestamp for an owner, or
// zero time when the owner has no history.
func (s *Store) FirstActivityTime(ctx context.Context, owner string) (time.Time, error) {
	query := `
		SELECT min(event_time) FROM position_history WHERE owner_address = $1
	`
	var first *time.Time
	if err := s.QueryRow(ctx, query, owner).Scan(&first); err != nil {
		return time.Time{}, fmt.Errorf("first activity %s: %w", owner, err)
	}
	if first == nil {
		return time.Time{}, nil
	}
	return *first, nil
}

// ActionCountSince counts an owner's history rows matching any of the
// given actions since the given time.
func (s *Store) ActionCountSince(ctx context.Context, owner string, actions []models.HistoryAction, since time.Time) (int64, error) {
	query := `
		SELECT count(*)
		FROM position_history
		WHERE owner_address = $1 AND action = ANY($2) AND event_time > $3
	`
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}

	var n int64
	if err := s.QueryRow(ctx, query, owner, names, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("action count %s: %w", owner, err)
	}
	return n, nil
}

// KnownOwners returns every address that has ever held a position.
func (s *Store) KnownOwners(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT owner_address FROM positions ORDER BY owner_address`

	rows, err := s.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("known owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}
