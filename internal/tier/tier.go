// Package tier resolves subscription entitlements.
//
// Two predicates exist on purpose. CanClaim gates actions (claim, redeem) and
// always requires a user. IsLocked drives display only: an anonymous visitor
// may preview FREE deals, but still cannot claim them.
package tier

import "github.com/tripzydevops/tripzytravelanti-sub001/internal/model"

var ranks = map[model.Tier]int{
	model.TierNone:    0,
	model.TierFree:    1,
	model.TierBasic:   2,
	model.TierPremium: 3,
	model.TierVIP:     4,
}

// Rank returns the position of t in the tier order. Unknown tiers rank as NONE.
func Rank(t model.Tier) int {
	return ranks[t]
}

// AtLeast reports whether have ranks at or above want.
func AtLeast(have, want model.Tier) bool {
	return Rank(have) >= Rank(want)
}

// CanClaim reports whether user may claim or redeem deal.
func CanClaim(user *model.User, deal model.Deal) bool {
	if user == nil {
		return false
	}
	return AtLeast(user.Tier, deal.RequiredTier)
}

// IsLocked reports whether deal should render as locked for user.
func IsLocked(user *model.User, deal model.Deal) bool {
	if user == nil {
		return deal.RequiredTier != model.TierFree
	}
	return !CanClaim(user, deal)
}
