package model

import "time"

type WalletStatus string

const (
	WalletActive   WalletStatus = "active"
	WalletRedeemed WalletStatus = "redeemed"
	WalletExpired  WalletStatus = "expired"
)

// Terminal reports whether no transition may leave s.
func (s WalletStatus) Terminal() bool {
	return s == WalletRedeemed || s == WalletExpired
}

// WalletItem is one deal instance owned by one user. RedemptionCode is unique
// to the instance, unlike the deal's legacy shared code.
type WalletItem struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	DealID         int64        `json:"deal_id"`
	RedemptionCode string       `json:"redemption_code"`
	Status         WalletStatus `json:"status"`
	AcquiredAt     time.Time    `json:"acquired_at"`
	RedeemedAt     *time.Time   `json:"redeemed_at"`
}

// EffectiveStatus reports the status as observed at now: an active item whose
// deal has expired reads as expired even before the sweeper writes it.
func (w WalletItem) EffectiveStatus(deal Deal, now time.Time) WalletStatus {
	if w.Status == WalletActive && deal.IsExpired(now) {
		return WalletExpired
	}
	return w.Status
}
