package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

type UserStore struct {
	db querier
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// WithTx returns a UserStore bound to tx.
func (s *UserStore) WithTx(tx *sql.Tx) *UserStore {
	return &UserStore{db: tx}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var walletLimit sql.NullInt64
	var subStart sql.NullTime

	err := scanner.Scan(&u.ID, &u.Tier, &u.ExtraRedemptions, &walletLimit, &subStart, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	u.WalletLimit = intPtr(walletLimit)
	u.SubscriptionStartDate = timePtr(subStart)
	return &u, nil
}

const userCols = `id, tier, extra_redemptions, wallet_limit, subscription_start_date, created_at`

func (s *UserStore) Create(ctx context.Context, u model.User) (*model.User, error) {
	tier := u.Tier
	if tier == "" {
		tier = model.TierNone
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tier, extra_redemptions, wallet_limit, subscription_start_date) VALUES (?, ?, ?, ?, ?)`,
		u.ID, tier, u.ExtraRedemptions, nullInt(u.WalletLimit), nullTime(u.SubscriptionStartDate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, u.ID)
}

// GetByID returns the user with their full redemption history.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.Redemptions, err = s.ListRedemptions(ctx, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateSubscription sets the tier and the subscription anchor date.
func (s *UserStore) UpdateSubscription(ctx context.Context, id string, tier model.Tier, start *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET tier = ?, subscription_start_date = ? WHERE id = ?`,
		tier, nullTime(start), id,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// SetWalletLimit overrides the tier's wallet ceiling. nil restores the default.
func (s *UserStore) SetWalletLimit(ctx context.Context, id string, limit *int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET wallet_limit = ? WHERE id = ?`, nullInt(limit), id)
	if err != nil {
		return fmt.Errorf("set wallet limit: %w", err)
	}
	return nil
}

func (s *UserStore) AddExtraRedemptions(ctx context.Context, id string, n int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET extra_redemptions = extra_redemptions + ? WHERE id = ?`, n, id,
	)
	if err != nil {
		return fmt.Errorf("add extra redemptions: %w", err)
	}
	return nil
}

// --- Redemption history ---

func scanRedemption(scanner interface{ Scan(...any) error }) (*model.Redemption, error) {
	var r model.Redemption
	var partnerID sql.NullInt64

	err := scanner.Scan(&r.ID, &r.DealID, &r.UserID, &r.WalletItemID, &partnerID, &r.RedeemedAt)
	if err != nil {
		return nil, err
	}
	r.PartnerID = int64Ptr(partnerID)
	return &r, nil
}

const redemptionCols = `id, deal_id, user_id, wallet_item_id, partner_id, redeemed_at`

func (s *UserStore) AddRedemption(ctx context.Context, r model.Redemption) (*model.Redemption, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO redemptions (deal_id, user_id, wallet_item_id, partner_id, redeemed_at) VALUES (?, ?, ?, ?, ?)`,
		r.DealID, r.UserID, r.WalletItemID, nullInt64(r.PartnerID), r.RedeemedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+redemptionCols+` FROM redemptions WHERE id = ?`, id)
	return scanRedemption(row)
}

// ListRedemptions returns a user's redemptions, newest first.
func (s *UserStore) ListRedemptions(ctx context.Context, userID string) ([]model.Redemption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+redemptionCols+` FROM redemptions WHERE user_id = ? ORDER BY redeemed_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}
