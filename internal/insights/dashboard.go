// Package insights builds the per-user dashboard, reward recommendations and
// the natural-language summary shown next to them.
package insights

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/effortless/internal/domain"
)

const (
	// DefaultWindow is the look-back period of the dashboard.
	DefaultWindow = 30 * 24 * time.Hour

	recentLimit = 10

	// OtherCategory groups savings on transactions without a category.
	OtherCategory = "Other"
)

// CategorySavings is the savings total of one category.
type CategorySavings struct {
	Category     string          `json:"category"`
	TotalSavings decimal.Decimal `json:"total_savings"`
	Count        int             `json:"count"`
}

// Dashboard summarizes a user's account and reward activity.
type Dashboard struct {
	TotalBalance          decimal.Decimal       `json:"total_balance"`
	TotalTransactions     int                   `json:"total_transactions"`
	SavedViaAutoApply     decimal.Decimal       `json:"saved_via_auto_apply"`
	SavedViaNotifications decimal.Decimal       `json:"saved_via_notifications"`
	RewardsByCategory     []CategorySavings     `json:"rewards_by_category"`
	RecentRewardsApplied  []*domain.Transaction `json:"recent_rewards_applied"`
	RecentRewardsMissed   []*domain.Transaction `json:"recent_rewards_missed"`
}

// TotalSavings is the sum of auto-applied and notification driven savings.
func (d *Dashboard) TotalSavings() decimal.Decimal {
	return d.SavedViaAutoApply.Add(d.SavedViaNotifications)
}

// BuildDashboard computes the dashboard over txs. Balance and count cover
// every transaction; savings, categories and the recent lists only cover
// transactions inside window before now.
func BuildDashboard(txs []*domain.Transaction, now time.Time, window time.Duration) *Dashboard {
	if window <= 0 {
		window = DefaultWindow
	}

	d := &Dashboard{
		TotalTransactions:    len(txs),
		RewardsByCategory:    []CategorySavings{},
		RecentRewardsApplied: []*domain.Transaction{},
		RecentRewardsMissed:  []*domain.Transaction{},
	}

	byCategory := map[string]*CategorySavings{}
	for _, tx := range txs {
		d.TotalBalance = d.TotalBalance.Add(tx.Amount)

		if !InWindow(tx.TransactionAt, now, window) {
			continue
		}

		saved := tx.RewardSavingsAmount != nil && !tx.RewardSavingsAmount.IsZero()
		switch {
		case tx.NotificationTriggered && saved:
			d.SavedViaNotifications = d.SavedViaNotifications.Add(*tx.RewardSavingsAmount)
		case tx.RewardApplied && saved:
			d.SavedViaAutoApply = d.SavedViaAutoApply.Add(*tx.RewardSavingsAmount)
		}

		if tx.RewardApplied && saved {
			cat, ok := tx.GetCategory()
			if !ok {
				cat = OtherCategory
			}
			cs := byCategory[cat]
			if cs == nil {
				cs = &CategorySavings{Category: cat}
				byCategory[cat] = cs
			}
			cs.TotalSavings = cs.TotalSavings.Add(*tx.RewardSavingsAmount)
			cs.Count++
		}

		if tx.RewardApplied {
			d.RecentRewardsApplied = append(d.RecentRewardsApplied, tx)
		}
		if tx.IsMissedReward() {
			d.RecentRewardsMissed = append(d.RecentRewardsMissed, tx)
		}
	}

	for _, cs := range byCategory {
		d.RewardsByCategory = append(d.RewardsByCategory, *cs)
	}
	sort.Slice(d.RewardsByCategory, func(i, j int) bool {
		a, b := d.RewardsByCategory[i], d.RewardsByCategory[j]
		if c := a.TotalSavings.Cmp(b.TotalSavings); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})

	d.RecentRewardsApplied = newest(d.RecentRewardsApplied, recentLimit)
	d.RecentRewardsMissed = newest(d.RecentRewardsMissed, recentLimit)
	return d
}

// InWindow reports whether t falls within window before now. Floating
// timestamps are compared against the wall clock of now.
func InWindow(t, now time.Time, window time.Duration) bool {
	if t.IsZero() {
		return false
	}
	if domain.IsFloating(t) {
		now = domain.AsFloating(now)
	}
	return !t.Before(now.Add(-window))
}

func newest(txs []*domain.Transaction, limit int) []*domain.Transaction {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].TransactionAt.After(txs[j].TransactionAt)
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs
}

// SpendByCategory totals outgoing amounts per category and returns the top n
// categories by amount spent.
func SpendByCategory(txs []*domain.Transaction, n int) []CategorySpend {
	totals := map[string]decimal.Decimal{}
	for _, tx := range txs {
		cat, ok := tx.GetCategory()
		if !ok || !tx.IsSpend() {
			continue
		}
		totals[cat] = totals[cat].Add(tx.Amount.Abs())
	}

	out := make([]CategorySpend, 0, len(totals))
	for cat, amt := range totals {
		out = append(out, CategorySpend{Category: cat, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CategorySpend is the amount spent in one category.
type CategorySpend struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// TotalSpent sums the absolute value of all outgoing amounts.
func TotalSpent(txs []*domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.IsSpend() {
			total = total.Add(tx.Amount.Abs())
		}
	}
	return total
}
