package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

type ConfirmationStore struct {
	db querier
}

func NewConfirmationStore(db *sql.DB) *ConfirmationStore {
	return &ConfirmationStore{db: db}
}

// WithTx returns a ConfirmationStore bound to tx.
func (s *ConfirmationStore) WithTx(tx *sql.Tx) *ConfirmationStore {
	return &ConfirmationStore{db: tx}
}

func scanConfirmation(scanner interface{ Scan(...any) error }) (*model.PendingConfirmation, error) {
	var c model.PendingConfirmation
	err := scanner.Scan(&c.WalletItemID, &c.Token, &c.PartnerID, &c.State, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const confirmationCols = `wallet_item_id, token, partner_id, state, created_at, expires_at`

// Put stores c, replacing any earlier confirmation for the same wallet item.
func (s *ConfirmationStore) Put(ctx context.Context, c model.PendingConfirmation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_confirmations (wallet_item_id, token, partner_id, state, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet_item_id) DO UPDATE SET
			token = excluded.token,
			partner_id = excluded.partner_id,
			state = excluded.state,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		c.WalletItemID, c.Token, c.PartnerID, c.State, c.CreatedAt.UTC(), c.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put confirmation: %w", err)
	}
	return nil
}

func (s *ConfirmationStore) Get(ctx context.Context, walletItemID string) (*model.PendingConfirmation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+confirmationCols+` FROM pending_confirmations WHERE wallet_item_id = ?`,
		walletItemID,
	)
	c, err := scanConfirmation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get confirmation: %w", err)
	}
	return c, nil
}

func (s *ConfirmationStore) List(ctx context.Context) ([]model.PendingConfirmation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+confirmationCols+` FROM pending_confirmations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list confirmations: %w", err)
	}
	defer rows.Close()

	var out []model.PendingConfirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Resolve moves a pending confirmation to state. It reports false when the
// confirmation was no longer pending.
func (s *ConfirmationStore) Resolve(ctx context.Context, walletItemID string, state model.ConfirmationState) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pending_confirmations SET state = ? WHERE wallet_item_id = ? AND state = 'pending'`,
		state, walletItemID,
	)
	if err != nil {
		return false, fmt.Errorf("resolve confirmation: %w", err)
	}
	return affected(result)
}

func (s *ConfirmationStore) Delete(ctx context.Context, walletItemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_confirmations WHERE wallet_item_id = ?`, walletItemID)
	if err != nil {
		return fmt.Errorf("delete confirmation: %w", err)
	}
	return nil
}
