package model

import "time"

// User is a subscriber. ID is the subject issued by the external auth provider.
type User struct {
	ID                    string       `json:"id"`
	Tier                  Tier         `json:"tier"`
	ExtraRedemptions      int          `json:"extra_redemptions"`
	WalletLimit           *int         `json:"wallet_limit"`
	SubscriptionStartDate *time.Time   `json:"subscription_start_date"`
	Redemptions           []Redemption `json:"redemptions,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
}

type Redemption struct {
	ID           int64     `json:"id"`
	DealID       int64     `json:"deal_id"`
	UserID       string    `json:"user_id"`
	WalletItemID string    `json:"wallet_item_id"`
	PartnerID    *int64    `json:"partner_id"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}
