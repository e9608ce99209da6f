package model

import "time"

// NeverExpires is stored as the expiry of deals without an end date.
var NeverExpires = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

type Deal struct {
	ID                   int64     `json:"id"`
	PartnerID            *int64    `json:"partner_id"`
	Title                string    `json:"title"`
	TitleTR              string    `json:"title_tr"`
	Description          string    `json:"description"`
	DescriptionTR        string    `json:"description_tr"`
	OriginalPrice        *int      `json:"original_price"`
	DiscountedPrice      *int      `json:"discounted_price"`
	DiscountPercentage   *int      `json:"discount_percentage"`
	RequiredTier         Tier      `json:"required_tier"`
	ExpiresAt            time.Time `json:"expires_at"`
	LegacyCode           string    `json:"-"`
	MaxRedemptions       *int      `json:"max_redemptions"`
	MaxPerUser           *int      `json:"max_per_user"`
	RedemptionsCount     int       `json:"redemptions_count"`
	SoldOut              bool      `json:"-"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	CreatedAt            time.Time `json:"created_at"`
}

// IsSoldOut reports the derived sold-out state: the explicit flag, or the
// redemption counter having reached the total cap.
func (d Deal) IsSoldOut() bool {
	if d.SoldOut {
		return true
	}
	return d.MaxRedemptions != nil && d.RedemptionsCount >= *d.MaxRedemptions
}

// NeverExpires reports whether the deal carries the far-future sentinel.
func (d Deal) NeverExpires() bool {
	return !d.ExpiresAt.Before(NeverExpires)
}

func (d Deal) IsExpired(now time.Time) bool {
	if d.NeverExpires() {
		return false
	}
	return !now.Before(d.ExpiresAt)
}

// Savings returns the discount in minor currency units. Percentage deals
// without a price pair report zero.
func (d Deal) Savings() int {
	if d.OriginalPrice == nil || d.DiscountedPrice == nil {
		return 0
	}
	if s := *d.OriginalPrice - *d.DiscountedPrice; s > 0 {
		return s
	}
	return 0
}

// IsHighValue reports whether vendor redemptions of this deal need the
// owner's explicit confirmation. A threshold <= 0 disables the price rule.
func (d Deal) IsHighValue(threshold int) bool {
	if d.RequiresConfirmation {
		return true
	}
	return threshold > 0 && d.Savings() >= threshold
}

// PerUserLimit returns the per-user usage cap, or 0 when uncapped.
func (d Deal) PerUserLimit() int {
	if d.MaxPerUser == nil {
		return 0
	}
	return *d.MaxPerUser
}
