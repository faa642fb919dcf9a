// Package matching selects which reward, if any, applies to an enriched
// transaction.
package matching

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dvloznov/effortless/internal/catalog"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/savings"
	"github.com/shopspring/decimal"
)

// ErrAlreadyDecided is returned by Confirm when the transaction already
// carries an applied reward.
var ErrAlreadyDecided = errors.New("reward already applied to transaction")

// Result is the outcome of matching one transaction.
type Result struct {
	// Candidates are all rewards that passed the catalog filters, in
	// catalog order.
	Candidates []domain.Reward

	// Applied is the auto-applied reward, nil when nothing was applied.
	Applied *domain.Reward

	// Savings is the stored savings of the applied reward.
	Savings decimal.Decimal

	// Missed holds the candidates to evaluate for notification when nothing
	// was auto-applied.
	Missed []domain.Reward

	// Indeterminate lists auto-applicable candidates skipped because their
	// savings could not be computed.
	Indeterminate []domain.Reward

	// Skipped is set when the transaction already had a reward decision and
	// was left untouched.
	Skipped bool
}

// Best returns the strongest missed candidate: highest value, then earliest
// start date, then catalog order.
func (r Result) Best(amount decimal.Decimal) (domain.Reward, bool) {
	if len(r.Missed) == 0 {
		return domain.Reward{}, false
	}
	ranked := rank(amount, r.Missed)
	return ranked[0].reward, true
}

// Matcher applies the auto-apply policy over a catalog view.
type Matcher struct {
	catalog catalog.Accessor
}

// NewMatcher creates a Matcher reading from acc. Batches pass a single
// snapshot so every transaction sees the same catalog.
func NewMatcher(acc catalog.Accessor) *Matcher {
	return &Matcher{catalog: acc}
}

// Match finds the candidates for tx and, when the user has auto-apply
// enabled, applies exactly one eligible reward to it.
//
// Eligible rewards are auto-applicable, need no opt-in, are monetary and have
// determinate savings. Among several, the highest savings wins, then the
// earliest start date, then catalog order. When nothing is applied the full
// candidate list is returned as missed opportunities and tx is not modified.
func (m *Matcher) Match(tx *domain.Transaction, user domain.UserContext) Result {
	if tx.RewardApplied || tx.MatchedRewardID != nil {
		return Result{Skipped: true}
	}

	res := Result{Candidates: m.catalog.ActiveCandidates(tx, user.Geo)}
	if len(res.Candidates) == 0 {
		return res
	}

	if user.AutoApply {
		var eligible []domain.Reward
		for _, r := range res.Candidates {
			if !r.AutoApplicable() || !r.Type.IsMonetary() {
				continue
			}
			if _, err := savings.Calculate(tx.Amount, &r); err != nil {
				res.Indeterminate = append(res.Indeterminate, r)
				continue
			}
			eligible = append(eligible, r)
		}

		if len(eligible) > 0 {
			best := rank(tx.Amount, eligible)[0]
			applied := best.reward
			res.Applied = &applied
			res.Savings = savings.Round(best.value)

			tx.MatchedRewardID = domain.StringPtr(applied.ID)
			tx.RewardApplied = true
			tx.NotificationTriggered = false
			s := res.Savings
			tx.RewardSavingsAmount = &s
			return res
		}
	}

	res.Missed = res.Candidates
	return res
}

// Confirm records that the user accepted a notified reward. The matched
// reward, the applied flag and the notification flag are set together, along
// with the savings for monetary rewards.
func Confirm(tx *domain.Transaction, r *domain.Reward) error {
	if tx.RewardApplied {
		return fmt.Errorf("Confirm: transaction %s: %w", tx.ID, ErrAlreadyDecided)
	}
	if tx.MatchedRewardID != nil && *tx.MatchedRewardID != r.ID {
		return fmt.Errorf("Confirm: transaction %s is matched to reward %s: %w", tx.ID, *tx.MatchedRewardID, ErrAlreadyDecided)
	}

	var amount *decimal.Decimal
	if r.Type.IsMonetary() {
		s, err := savings.Calculate(tx.Amount, r)
		if err != nil {
			return fmt.Errorf("Confirm: transaction %s: %w", tx.ID, err)
		}
		s = savings.Round(s)
		amount = &s
	}

	tx.MatchedRewardID = domain.StringPtr(r.ID)
	tx.RewardApplied = true
	tx.NotificationTriggered = true
	tx.RewardSavingsAmount = amount
	return nil
}

type ranked struct {
	reward domain.Reward
	value  decimal.Decimal
	order  int
}

// rank orders rewards by value descending, start date ascending, then input
// order. Value is the computed savings for monetary rewards and the nominal
// experience value otherwise; anything indeterminate counts as zero.
func rank(amount decimal.Decimal, rewards []domain.Reward) []ranked {
	out := make([]ranked, len(rewards))
	for i := range rewards {
		r := rewards[i]
		v, err := savings.Calculate(amount, &r)
		if err != nil {
			v = decimal.Zero
			if ev, ok := savings.ExperienceValue(&r); ok {
				v = ev
			}
		}
		out[i] = ranked{reward: r, value: v, order: i}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].value.Cmp(out[j].value); c != 0 {
			return c > 0
		}
		if !out[i].reward.StartDate.Equal(out[j].reward.StartDate) {
			return out[i].reward.StartDate.Before(out[j].reward.StartDate)
		}
		return out[i].order < out[j].order
	})
	return out
}
