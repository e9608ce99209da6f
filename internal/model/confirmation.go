package model

import "time"

type ConfirmationState string

const (
	ConfirmationPending   ConfirmationState = "pending"
	ConfirmationConfirmed ConfirmationState = "confirmed"
	ConfirmationDenied    ConfirmationState = "denied"
	// ConfirmationExpired and ConfirmationNone are reported, never stored.
	ConfirmationExpired ConfirmationState = "expired"
	ConfirmationNone    ConfirmationState = "none"
)

// PendingConfirmation is the short-lived handshake a vendor scan of a
// high-value wallet item opens with the item's owner.
type PendingConfirmation struct {
	WalletItemID string            `json:"wallet_item_id"`
	Token        string            `json:"-"`
	PartnerID    int64             `json:"partner_id"`
	State        ConfirmationState `json:"state"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// StateAt folds the window into the stored state.
func (c PendingConfirmation) StateAt(now time.Time) ConfirmationState {
	if c.State == ConfirmationPending && !now.Before(c.ExpiresAt) {
		return ConfirmationExpired
	}
	return c.State
}
