package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

type WalletStore struct {
	db querier
}

func NewWalletStore(db *sql.DB) *WalletStore {
	return &WalletStore{db: db}
}

// WithTx returns a WalletStore bound to tx.
func (s *WalletStore) WithTx(tx *sql.Tx) *WalletStore {
	return &WalletStore{db: tx}
}

func scanWalletItem(scanner interface{ Scan(...any) error }) (*model.WalletItem, error) {
	var w model.WalletItem
	var redeemedAt sql.NullTime

	err := scanner.Scan(&w.ID, &w.UserID, &w.DealID, &w.RedemptionCode, &w.Status, &w.AcquiredAt, &redeemedAt)
	if err != nil {
		return nil, err
	}
	w.RedeemedAt = timePtr(redeemedAt)
	return &w, nil
}

const walletCols = `id, user_id, deal_id, redemption_code, status, acquired_at, redeemed_at`

func (s *WalletStore) Create(ctx context.Context, userID string, dealID int64, code string, acquiredAt time.Time) (*model.WalletItem, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallet_items (id, user_id, deal_id, redemption_code, status, acquired_at) VALUES (?, ?, ?, ?, 'active', ?)`,
		id, userID, dealID, code, acquiredAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert wallet item: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *WalletStore) GetByID(ctx context.Context, id string) (*model.WalletItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+walletCols+` FROM wallet_items WHERE id = ?`, id)
	w, err := scanWalletItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet item: %w", err)
	}
	return w, nil
}

func (s *WalletStore) list(ctx context.Context, what, query string, args ...any) ([]model.WalletItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var items []model.WalletItem
	for rows.Next() {
		w, err := scanWalletItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet item: %w", err)
		}
		items = append(items, *w)
	}
	return items, rows.Err()
}

// ListByUser returns every wallet item the user owns, newest first.
func (s *WalletStore) ListByUser(ctx context.Context, userID string) ([]model.WalletItem, error) {
	return s.list(ctx, "list wallet items",
		`SELECT `+walletCols+` FROM wallet_items WHERE user_id = ? ORDER BY acquired_at DESC, id`,
		userID,
	)
}

// ListActiveByCode returns active items carrying code. The column is unique,
// so more than one result means the data is inconsistent.
func (s *WalletStore) ListActiveByCode(ctx context.Context, code string) ([]model.WalletItem, error) {
	return s.list(ctx, "list wallet items by code",
		`SELECT `+walletCols+` FROM wallet_items WHERE redemption_code = ? AND status = 'active'`,
		code,
	)
}

// CountByUserDeal counts the user's items for a deal in every status.
func (s *WalletStore) CountByUserDeal(ctx context.Context, userID string, dealID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallet_items WHERE user_id = ? AND deal_id = ?`,
		userID, dealID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count wallet items by deal: %w", err)
	}
	return n, nil
}

// ActiveDealExpiries returns, for each of the user's active items, the
// expiry of its deal. A user ID of "" selects every user.
func (s *WalletStore) ActiveDealExpiries(ctx context.Context, userID string) (map[string]time.Time, error) {
	query := `SELECT w.id, d.expires_at FROM wallet_items w JOIN deals d ON d.id = w.deal_id WHERE w.status = 'active'`
	var args []any
	if userID != "" {
		query += ` AND w.user_id = ?`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active expiries: %w", err)
	}
	defer rows.Close()

	expiries := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var expiresAt time.Time
		if err := rows.Scan(&id, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan active expiry: %w", err)
		}
		expiries[id] = expiresAt
	}
	return expiries, rows.Err()
}

// CodeExists reports whether any wallet item already uses code.
func (s *WalletStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_items WHERE redemption_code = ?`, code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check redemption code: %w", err)
	}
	return n > 0, nil
}

// MarkRedeemed moves an active item to redeemed. It reports false when the
// item was not active.
func (s *WalletStore) MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE wallet_items SET status = 'redeemed', redeemed_at = ? WHERE id = ? AND status = 'active'`,
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark wallet item redeemed: %w", err)
	}
	return affected(result)
}

// MarkExpired moves an active item to expired. It reports false when the
// item was not active.
func (s *WalletStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE wallet_items SET status = 'expired' WHERE id = ? AND status = 'active'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark wallet item expired: %w", err)
	}
	return affected(result)
}
