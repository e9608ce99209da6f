package model

// Tier is a subscription level. Tiers are totally ordered; see tier.Rank.
type Tier string

const (
	TierNone    Tier = "NONE"
	TierFree    Tier = "FREE"
	TierBasic   Tier = "BASIC"
	TierPremium Tier = "PREMIUM"
	TierVIP     Tier = "VIP"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierNone, TierFree, TierBasic, TierPremium, TierVIP}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	for _, known := range Tiers {
		if t == known {
			return true
		}
	}
	return false
}
