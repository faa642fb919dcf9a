package insights

import (
	"sort"
	"strings"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/savings"
)

const maxRecommendations = 5

// Recommendations are the rewards worth surfacing to a user.
type Recommendations struct {
	AutoApply []domain.Reward `json:"recommended_auto_apply_rewards"`
	Priceless []domain.Reward `json:"recommended_priceless_experiences"`
}

// Activity counts how often merchants and categories appear in a set of
// transactions.
type Activity struct {
	Merchants  map[string]int
	Categories map[string]int
}

// CountActivity tallies merchants and categories over txs. Keys are
// lower-cased.
func CountActivity(txs []*domain.Transaction) Activity {
	a := Activity{Merchants: map[string]int{}, Categories: map[string]int{}}
	for _, tx := range txs {
		if m, ok := tx.GetMerchant(); ok {
			a.Merchants[strings.ToLower(m)]++
		}
		if c, ok := tx.GetCategory(); ok {
			a.Categories[strings.ToLower(c)]++
		}
	}
	return a
}

// Top returns up to n keys of counts, most frequent first.
func Top(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Recommend picks up to five auto-apply rewards matching the categories or
// merchants in recent, and up to five experiences available at geo. available
// is expected to hold active rewards in catalog order.
func Recommend(geo string, recent []*domain.Transaction, available []domain.Reward) Recommendations {
	activity := CountActivity(recent)
	rec := Recommendations{AutoApply: []domain.Reward{}, Priceless: []domain.Reward{}}

	for _, r := range available {
		if !r.AutoApplicable() || len(rec.AutoApply) == maxRecommendations {
			continue
		}
		if activity.Categories[strings.ToLower(r.Category)] > 0 || activity.Merchants[strings.ToLower(r.MerchantName)] > 0 {
			rec.AutoApply = append(rec.AutoApply, r)
		}
	}

	geo = strings.ToLower(strings.TrimSpace(geo))
	for _, r := range available {
		if r.Type != domain.RewardTypeExperience {
			continue
		}
		if r.IsGlobal() || (geo != "" && r.GeoCity != "" && strings.Contains(strings.ToLower(r.GeoCity), geo)) {
			rec.Priceless = append(rec.Priceless, r)
		}
	}
	sort.SliceStable(rec.Priceless, func(i, j int) bool {
		vi, _ := savings.ExperienceValue(&rec.Priceless[i])
		vj, _ := savings.ExperienceValue(&rec.Priceless[j])
		return vi.GreaterThan(vj)
	})
	if len(rec.Priceless) > maxRecommendations {
		rec.Priceless = rec.Priceless[:maxRecommendations]
	}
	return rec
}
