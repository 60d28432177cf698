package db

import (
	"context"
	"fmt"

	"github.com/meridianlabs/lendx/pkg/db/models"
)

// GetStake returns the stake for (asset, owner), or nil when none exists.
func (s *Store) GetStake(ctx context.Context, asset, owner string) (*models.Stake, error) {
	query := `
		SELECT id, owner_address, asset, deposit, product_constant,
		       compounded_constant, epoch, total_rewards_claimed, updated_at
		FROM stakes
		WHERE asset = $1 AND owner_address = $2
	`

	st := &models.Stake{}
	err := s.QueryRow(ctx, query, asset, owner).Scan(
		&st.ID, &st.OwnerAddress, &st.Asset, &st.Deposit, &st.ProductConstant,
		&st.CompoundedConstant, &st.Epoch, &st.TotalRewardsClaimed, &st.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stake %s/%s: %w", asset, owner, err)
	}
	return st, nil
}

// UpsertStake writes the canonical stake row for (asset, owner) and returns
// its id.
func (s *Store) UpsertStake(ctx context.Context, st *models.Stake) (int64, error) {
	query := `
		INSERT INTO stakes (
			owner_address, asset, deposit, product_constant,
			compounded_constant, epoch, total_rewards_claimed, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (asset, owner_address) DO UPDATE SET
			deposit = EXCLUDED.deposit,
			product_constant = EXCLUDED.product_constant,
			compounded_constant = EXCLUDED.compounded_constant,
			epoch = EXCLUDED.epoch,
			total_rewards_claimed = EXCLUDED.total_rewards_claimed,
			updated_at = now()
		RETURNING id
	`

	var id int64
	err := s.QueryRow(ctx, query,
		st.OwnerAddress, st.Asset, st.Deposit, st.ProductConstant,
		st.CompoundedConstant, st.Epoch, st.TotalRewardsClaimed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert stake %s/%s: %w", st.Asset, st.OwnerAddress, err)
	}
	return id, nil
}

// InsertStakeHistory appends one classified stake action row.
func (s *Store) InsertStakeHistory(ctx context.Context, h *models.StakeHistory) error {
	query := `
		INSERT INTO stake_history (
			stake_id, asset, owner_address, action,
			deposit, deposit_delta, rewards, event_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	err := s.Exec(ctx, query,
		h.StakeID, h.Asset, h.OwnerAddress, h.Action,
		h.Deposit, h.DepositDelta, h.Rewards, h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert stake history %s/%s: %w", h.Asset, h.OwnerAddress, err)
	}
	return nil
}
