package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestReward_IsActive(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name   string
		end    *time.Time
		at     time.Time
		active bool
	}{
		{"before start", &end, start.Add(-time.Second), false},
		{"at start", &end, start, true},
		{"inside window", &end, start.Add(48 * time.Hour), true},
		{"at end", &end, end, true},
		{"after end", &end, end.Add(time.Second), false},
		{"open ended", nil, start.AddDate(5, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reward{StartDate: start, EndDate: tt.end}
			require.Equal(t, tt.active, r.IsActive(tt.at))
		})
	}
}

func TestParseRewardType(t *testing.T) {
	rt, err := ParseRewardType(" Percentage_Cashback ")
	require.NoError(t, err)
	require.Equal(t, RewardTypePercentageCashback, rt)
	require.True(t, rt.IsMonetary())
	require.False(t, RewardTypeExperience.IsMonetary())

	_, err = ParseRewardType("points")
	require.Error(t, err)
}

func TestParseGeoScope(t *testing.T) {
	gs, err := ParseGeoScope("")
	require.NoError(t, err)
	require.Equal(t, GeoScopeGlobal, gs)

	gs, err = ParseGeoScope("CITY")
	require.NoError(t, err)
	require.Equal(t, GeoScopeCity, gs)

	_, err = ParseGeoScope("planet")
	require.Error(t, err)
}

func TestReward_AutoApplicable(t *testing.T) {
	require.True(t, (&Reward{IsAutoApplicable: true}).AutoApplicable())
	require.False(t, (&Reward{IsAutoApplicable: true, RequiresUserOptIn: true}).AutoApplicable())
	require.False(t, (&Reward{}).AutoApplicable())
}

func TestTransaction_Clone(t *testing.T) {
	savings := decimal.RequireFromString("1.25")
	tx := &Transaction{
		ID:                  "tx-1",
		Amount:              decimal.RequireFromString("-25.00"),
		MerchantNormalized:  StringPtr("Starbucks"),
		RewardSavingsAmount: &savings,
	}

	c := tx.Clone()
	*c.MerchantNormalized = "Other"
	*c.RewardSavingsAmount = decimal.Zero

	m, ok := tx.GetMerchant()
	require.True(t, ok)
	require.Equal(t, "Starbucks", m)
	require.True(t, tx.RewardSavingsAmount.Equal(savings))
	require.True(t, tx.IsSpend())
}

func TestTransaction_IsMissedReward(t *testing.T) {
	tx := &Transaction{}
	require.False(t, tx.IsMissedReward())

	tx.MatchedRewardID = StringPtr("r-1")
	require.True(t, tx.IsMissedReward())

	tx.RewardApplied = true
	require.False(t, tx.IsMissedReward())
}

func TestFloating(t *testing.T) {
	aware := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.False(t, IsFloating(aware))

	f := AsFloating(aware)
	require.True(t, IsFloating(f))
	require.Equal(t, aware.Hour(), f.Hour())
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences(User{ID: "u1", PrimaryGeoLocation: "San Francisco"})
	require.True(t, p.NotificationsEnabled)
	require.True(t, p.PricelessNotificationsEnabled)
	require.True(t, p.AutoApplyRewardsEnabled)
	require.Equal(t, "San Francisco", p.PricelessGeoLocation)
}
