// Package quota computes a user's monthly redemption allowance.
package quota

import (
	"time"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

// Unlimited marks an unbounded allowance.
const Unlimited = -1

// Table maps a tier to its monthly base allowance.
type Table map[model.Tier]int

// DefaultTable is used when configuration does not override it.
var DefaultTable = Table{
	model.TierNone:    0,
	model.TierFree:    1,
	model.TierBasic:   5,
	model.TierPremium: 15,
	model.TierVIP:     Unlimited,
}

// Base returns the monthly allowance for t, zero for unknown tiers.
func (tb Table) Base(t model.Tier) int {
	return tb[t]
}

// Usage is a snapshot of a user's monthly quota.
type Usage struct {
	Used      int  `json:"used"`
	Total     int  `json:"total"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
	// ResetsAt is when Used next returns to zero: the start of the next
	// local calendar month.
	ResetsAt time.Time `json:"resets_at"`
	// RenewsAt is the next subscription anniversary. It does not reset the
	// monthly quota.
	RenewsAt time.Time `json:"renews_at"`
}

// Exhausted reports whether no redemption is left this month.
func (u Usage) Exhausted() bool {
	return !u.Unlimited && u.Remaining <= 0
}

// Remaining computes the usage snapshot for user at now.
func Remaining(user model.User, table Table, now time.Time) Usage {
	used := UsedThisMonth(user.Redemptions, now)
	usage := Usage{
		Used:     used,
		ResetsAt: StartOfNextMonth(now),
		RenewsAt: NextRenewal(user.SubscriptionStartDate, now),
	}

	base := table.Base(user.Tier)
	if base == Unlimited {
		usage.Total = Unlimited
		usage.Remaining = Unlimited
		usage.Unlimited = true
		return usage
	}

	usage.Total = base + user.ExtraRedemptions
	usage.Remaining = max(0, usage.Total-used)
	return usage
}

// UsedThisMonth counts redemptions falling in the same local calendar month
// and year as now.
func UsedThisMonth(redemptions []model.Redemption, now time.Time) int {
	year, month, _ := now.Date()
	n := 0
	for _, r := range redemptions {
		y, m, _ := r.RedeemedAt.In(now.Location()).Date()
		if y == year && m == month {
			n++
		}
	}
	return n
}

// StartOfMonth returns the first instant of now's local month.
func StartOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

func StartOfNextMonth(now time.Time) time.Time {
	return StartOfMonth(now).AddDate(0, 1, 0)
}

// NextRenewal advances start by whole years until it is strictly after now.
// Without a start date it falls back to one year from now.
func NextRenewal(start *time.Time, now time.Time) time.Time {
	if start == nil {
		return now.AddDate(1, 0, 0)
	}
	renewal := *start
	for years := 1; !renewal.After(now); years++ {
		renewal = start.AddDate(years, 0, 0)
	}
	return renewal
}
