package capacity

import (
	"testing"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
)

func intPtr(n int) *int { return &n }

func TestLimitDefaults(t *testing.T) {
	want := map[model.Tier]int{
		model.TierNone:    0,
		model.TierFree:    3,
		model.TierBasic:   10,
		model.TierPremium: 25,
		model.TierVIP:     Unbounded,
	}
	for tier, limit := range want {
		if got := Limit(tier, nil); got != limit {
			t.Errorf("Limit(%s) = %d, want %d", tier, got, limit)
		}
	}
}

func TestCustomLimitOverrides(t *testing.T) {
	if got := Limit(model.TierBasic, intPtr(5)); got != 5 {
		t.Errorf("Limit(BASIC, 5) = %d, want 5", got)
	}
	// An override may also raise the ceiling or close the wallet.
	if got := Limit(model.TierFree, intPtr(40)); got != 40 {
		t.Errorf("Limit(FREE, 40) = %d, want 40", got)
	}
	if got := Limit(model.TierVIP, intPtr(0)); got != 0 {
		t.Errorf("Limit(VIP, 0) = %d, want 0", got)
	}
}

func TestCanAdd(t *testing.T) {
	tests := []struct {
		name   string
		active int
		tier   model.Tier
		custom *int
		want   bool
	}{
		{"free at default ceiling", 3, model.TierFree, nil, false},
		{"free below ceiling", 2, model.TierFree, nil, true},
		{"basic with override below", 4, model.TierBasic, intPtr(5), true},
		{"basic with override at", 5, model.TierBasic, intPtr(5), false},
		{"none tier", 0, model.TierNone, nil, false},
		{"vip", 500, model.TierVIP, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdd(tt.active, tt.tier, tt.custom); got != tt.want {
				t.Errorf("CanAdd = %v, want %v", got, tt.want)
			}
			if got := IsFull(tt.active, tt.tier, tt.custom); got == tt.want {
				t.Errorf("IsFull = %v, want %v", got, !tt.want)
			}
		})
	}
}

func TestUsagePercent(t *testing.T) {
	tests := []struct {
		active, limit, want int
	}{
		{0, 10, 0},
		{5, 10, 50},
		{1, 3, 33},
		{3, 3, 100},
		{7, 5, 100},
		{9000, Unbounded, 0},
		{0, 0, 0},
		{2, 0, 100},
	}
	for _, tt := range tests {
		if got := UsagePercent(tt.active, tt.limit); got != tt.want {
			t.Errorf("UsagePercent(%d, %d) = %d, want %d", tt.active, tt.limit, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(3, model.TierFree, nil)
	if s.Limit != 3 || s.Percent != 100 || !s.Full {
		t.Errorf("summary = %+v, want limit 3, 100%%, full", s)
	}

	s = Summarize(10, model.TierVIP, nil)
	if s.Full || s.Percent != 0 {
		t.Errorf("vip summary = %+v, want not full, 0%%", s)
	}
}
