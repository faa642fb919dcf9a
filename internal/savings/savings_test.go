package savings

import (
	"errors"
	"testing"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		reward domain.Reward
		want   string
	}{
		{
			name:   "percentage capped",
			amount: "-2000.00",
			reward: domain.Reward{Type: domain.RewardTypePercentageCashback, PercentageValue: dec("5"), MaxSavingsAmount: dec("50.00")},
			want:   "50.00",
		},
		{
			name:   "percentage under cap",
			amount: "-45.50",
			reward: domain.Reward{Type: domain.RewardTypePercentageCashback, PercentageValue: dec("5"), MaxSavingsAmount: dec("50.00")},
			want:   "2.275",
		},
		{
			name:   "percentage uncapped",
			amount: "-2000.00",
			reward: domain.Reward{Type: domain.RewardTypePercentageCashback, PercentageValue: dec("10")},
			want:   "200",
		},
		{
			name:   "percentage of a credit uses the absolute value",
			amount: "100.00",
			reward: domain.Reward{Type: domain.RewardTypePercentageCashback, PercentageValue: dec("2")},
			want:   "2",
		},
		{
			name:   "fixed amount ignores transaction size",
			amount: "-3.00",
			reward: domain.Reward{Type: domain.RewardTypeFixedAmount, FixedAmountValue: dec("10.00")},
			want:   "10.00",
		},
		{
			name:   "fixed amount of zero is a valid outcome",
			amount: "-3.00",
			reward: domain.Reward{Type: domain.RewardTypeFixedAmount, FixedAmountValue: dec("0")},
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(decimal.RequireFromString(tt.amount), &tt.reward)
			require.NoError(t, err)
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestCalculate_NeverExceedsCap(t *testing.T) {
	limit := decimal.RequireFromString("12.34")
	r := domain.Reward{Type: domain.RewardTypePercentageCashback, PercentageValue: dec("7.5"), MaxSavingsAmount: &limit}

	for _, amt := range []string{"0", "-1", "-99.99", "-164.53", "-164.54", "-10000", "5000"} {
		got, err := Calculate(decimal.RequireFromString(amt), &r)
		require.NoError(t, err)
		require.False(t, got.GreaterThan(limit), "amount %s gave %s", amt, got)
		require.False(t, got.IsNegative())
	}
}

func TestCalculate_Indeterminate(t *testing.T) {
	_, err := Calculate(decimal.RequireFromString("-10"), &domain.Reward{ID: "r1", Type: domain.RewardTypePercentageCashback})
	require.ErrorIs(t, err, ErrIndeterminate)

	var ie *IndeterminateError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, "r1", ie.RewardID)
	require.Equal(t, "percentage_value", ie.Field)

	_, err = Calculate(decimal.RequireFromString("-10"), &domain.Reward{ID: "r2", Type: domain.RewardTypeFixedAmount})
	require.ErrorIs(t, err, ErrIndeterminate)
}

func TestCalculate_Experience(t *testing.T) {
	r := domain.Reward{ID: "r3", Type: domain.RewardTypeExperience, FixedAmountValue: dec("150.00")}

	_, err := Calculate(decimal.RequireFromString("-10"), &r)
	require.ErrorIs(t, err, ErrNotMonetary)

	v, ok := ExperienceValue(&r)
	require.True(t, ok)
	require.True(t, v.Equal(decimal.RequireFromString("150")))

	_, ok = ExperienceValue(&domain.Reward{Type: domain.RewardTypeFixedAmount, FixedAmountValue: dec("1")})
	require.False(t, ok)
}

func TestRound(t *testing.T) {
	require.Equal(t, "2.28", Round(decimal.RequireFromString("2.275")).StringFixed(2))
	require.Equal(t, "0.10", Round(decimal.RequireFromString("0.1")).StringFixed(2))
}
