package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

type DealStore struct {
	db querier
}

func NewDealStore(db *sql.DB) *DealStore {
	return &DealStore{db: db}
}

// WithTx returns a DealStore bound to tx.
func (s *DealStore) WithTx(tx *sql.Tx) *DealStore {
	return &DealStore{db: tx}
}

func scanDeal(scanner interface{ Scan(...any) error }) (*model.Deal, error) {
	var d model.Deal
	var partnerID, originalPrice, discountedPrice, discountPct, maxRedemptions, maxPerUser sql.NullInt64
	var soldOut, requiresConfirmation int

	err := scanner.Scan(
		&d.ID, &partnerID, &d.Title, &d.TitleTR, &d.Description, &d.DescriptionTR,
		&originalPrice, &discountedPrice, &discountPct, &d.RequiredTier, &d.ExpiresAt,
		&d.LegacyCode, &maxRedemptions, &maxPerUser, &d.RedemptionsCount, &soldOut,
		&requiresConfirmation, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.PartnerID = int64Ptr(partnerID)
	d.OriginalPrice = intPtr(originalPrice)
	d.DiscountedPrice = intPtr(discountedPrice)
	d.DiscountPercentage = intPtr(discountPct)
	d.MaxRedemptions = intPtr(maxRedemptions)
	d.MaxPerUser = intPtr(maxPerUser)
	d.SoldOut = soldOut != 0
	d.RequiresConfirmation = requiresConfirmation != 0
	return &d, nil
}

const dealCols = `id, partner_id, title, title_tr, description, description_tr,
	original_price, discounted_price, discount_percentage, required_tier, expires_at,
	legacy_code, max_redemptions, max_per_user, redemptions_count, sold_out,
	requires_confirmation, created_at`

// Create inserts d. A zero ExpiresAt is stored as model.NeverExpires.
func (s *DealStore) Create(ctx context.Context, d model.Deal) (*model.Deal, error) {
	expiresAt := d.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = model.NeverExpires
	}
	requiredTier := d.RequiredTier
	if requiredTier == "" {
		requiredTier = model.TierFree
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (partner_id, title, title_tr, description, description_tr,
			original_price, discounted_price, discount_percentage, required_tier, expires_at,
			legacy_code, max_redemptions, max_per_user, requires_confirmation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(d.PartnerID), d.Title, d.TitleTR, d.Description, d.DescriptionTR,
		nullInt(d.OriginalPrice), nullInt(d.DiscountedPrice), nullInt(d.DiscountPercentage),
		requiredTier, expiresAt.UTC(), d.LegacyCode, nullInt(d.MaxRedemptions),
		nullInt(d.MaxPerUser), boolInt(d.RequiresConfirmation),
	)
	if err != nil {
		return nil, fmt.Errorf("insert deal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *DealStore) GetByID(ctx context.Context, id int64) (*model.Deal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dealCols+` FROM deals WHERE id = ?`, id)
	d, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

// List returns all deals, newest first.
func (s *DealStore) List(ctx context.Context) ([]model.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+dealCols+` FROM deals ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// GetByLegacyCode returns a deal whose shared code equals code, or nil.
func (s *DealStore) GetByLegacyCode(ctx context.Context, code string) (*model.Deal, error) {
	if code == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+dealCols+` FROM deals WHERE legacy_code = ? LIMIT 1`, code)
	d, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deal by legacy code: %w", err)
	}
	return d, nil
}

// IncrementRedemptions bumps the counter unless the deal is flagged sold out
// or the cap has been reached. It reports false when nothing was updated.
func (s *DealStore) IncrementRedemptions(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE deals SET redemptions_count = redemptions_count + 1
		WHERE id = ? AND sold_out = 0
			AND (max_redemptions IS NULL OR redemptions_count < max_redemptions)`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("increment redemptions: %w", err)
	}
	return affected(result)
}

func (s *DealStore) MarkSoldOut(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE deals SET sold_out = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark deal sold out: %w", err)
	}
	return nil
}

func (s *DealStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete deal: %w", err)
	}
	return nil
}
