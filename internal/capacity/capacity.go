// Package capacity computes wallet slot ceilings.
package capacity

import "github.com/tripzydevops/tripzytravelanti-sub001/internal/model"

// Unbounded is the VIP ceiling. It is finite so percentages stay finite.
const Unbounded = 9999

var defaults = map[model.Tier]int{
	model.TierNone:    0,
	model.TierFree:    3,
	model.TierBasic:   10,
	model.TierPremium: 25,
	model.TierVIP:     Unbounded,
}

// Limit returns the wallet ceiling. A custom per-user limit replaces the
// tier default entirely.
func Limit(t model.Tier, custom *int) int {
	if custom != nil {
		return *custom
	}
	return defaults[t]
}

// CanAdd reports whether one more active item fits.
func CanAdd(active int, t model.Tier, custom *int) bool {
	return active < Limit(t, custom)
}

func IsFull(active int, t model.Tier, custom *int) bool {
	return !CanAdd(active, t, custom)
}

// UsagePercent returns the fill level for progress displays. The unbounded
// ceiling always reports 0.
func UsagePercent(active, limit int) int {
	if limit == Unbounded {
		return 0
	}
	if limit <= 0 {
		if active > 0 {
			return 100
		}
		return 0
	}
	return min(100, active*100/limit)
}

// Summary describes a user's wallet fill level.
type Summary struct {
	Active  int  `json:"active"`
	Limit   int  `json:"limit"`
	Percent int  `json:"percent"`
	Full    bool `json:"full"`
}

func Summarize(active int, t model.Tier, custom *int) Summary {
	limit := Limit(t, custom)
	return Summary{
		Active:  active,
		Limit:   limit,
		Percent: UsagePercent(active, limit),
		Full:    active >= limit,
	}
}
