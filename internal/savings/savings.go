// Package savings computes the monetary value of applying a reward to a
// transaction amount. All arithmetic is fixed-point decimal.
package savings

import (
	"errors"
	"fmt"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/shopspring/decimal"
)

// StoragePlaces is the number of decimal places savings are stored with.
const StoragePlaces = 2

var hundred = decimal.NewFromInt(100)

var (
	// ErrIndeterminate is returned when a reward lacks the value its type
	// requires, so no savings figure exists. It is distinct from zero.
	ErrIndeterminate = errors.New("savings indeterminate")

	// ErrNotMonetary is returned for reward types that carry no savings.
	ErrNotMonetary = errors.New("reward type is not monetary")
)

// IndeterminateError names the reward and the missing value.
type IndeterminateError struct {
	RewardID string
	Field    string
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("savings indeterminate for reward %s: %s is missing", e.RewardID, e.Field)
}

// Unwrap lets errors.Is match ErrIndeterminate.
func (e *IndeterminateError) Unwrap() error {
	return ErrIndeterminate
}

// Calculate returns the non-negative savings of applying r to a transaction
// of the given signed amount.
//
// Percentage cashback is |amount| * percentage / 100, capped by the reward's
// max savings when one is set. Fixed amount rewards return their flat value.
// Experience rewards return ErrNotMonetary.
func Calculate(amount decimal.Decimal, r *domain.Reward) (decimal.Decimal, error) {
	switch r.Type {
	case domain.RewardTypePercentageCashback:
		if r.PercentageValue == nil {
			return decimal.Zero, &IndeterminateError{RewardID: r.ID, Field: "percentage_value"}
		}
		s := amount.Abs().Mul(*r.PercentageValue).Div(hundred)
		if r.MaxSavingsAmount != nil && s.GreaterThan(*r.MaxSavingsAmount) {
			s = *r.MaxSavingsAmount
		}
		return nonNegative(s), nil

	case domain.RewardTypeFixedAmount:
		if r.FixedAmountValue == nil {
			return decimal.Zero, &IndeterminateError{RewardID: r.ID, Field: "fixed_amount_value"}
		}
		return nonNegative(*r.FixedAmountValue), nil

	case domain.RewardTypeExperience:
		return decimal.Zero, fmt.Errorf("Calculate: reward %s: %w", r.ID, ErrNotMonetary)

	default:
		return decimal.Zero, fmt.Errorf("Calculate: reward %s: unknown type %q: %w", r.ID, r.Type, ErrIndeterminate)
	}
}

// Round rounds a savings figure to storage precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(StoragePlaces)
}

// ExperienceValue returns the nominal value of an experience reward. It is
// only used to weight recommendations and is never applied as savings.
func ExperienceValue(r *domain.Reward) (decimal.Decimal, bool) {
	if r.Type != domain.RewardTypeExperience || r.FixedAmountValue == nil {
		return decimal.Zero, false
	}
	return *r.FixedAmountValue, true
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
