package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/stretchr/testify/require"
)

var allOn = domain.NotificationPrefs{Enabled: true, PricelessEnabled: true}

func wineTasting() *domain.Reward {
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	return &domain.Reward{
		ID:        "wine",
		Type:      domain.RewardTypeExperience,
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   &end,
		GeoScope:  domain.GeoScopeCity,
		GeoCity:   "San Francisco",
	}
}

func TestShouldNotify(t *testing.T) {
	inside := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		now    time.Time
		prefs  domain.NotificationPrefs
		geo    string
		reward func() *domain.Reward
		want   bool
	}{
		{"all conditions met", inside, allOn, "san francisco", wineTasting, true},
		{"global notifications off", inside, domain.NotificationPrefs{PricelessEnabled: true}, "San Francisco", wineTasting, false},
		{"priceless notifications off", inside, domain.NotificationPrefs{Enabled: true}, "San Francisco", wineTasting, false},
		{"geo unknown", inside, allOn, "", wineTasting, false},
		{"geo elsewhere", inside, allOn, "Boston", wineTasting, false},
		{"geo with state suffix is not contained in city", inside, allOn, "San Francisco, CA", wineTasting, false},
		{"partial geo is contained", inside, allOn, "francisco", wineTasting, true},
		{"before start", time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC), allOn, "San Francisco", wineTasting, false},
		{"after end", time.Date(2024, 6, 30, 0, 0, 1, 0, time.UTC), allOn, "San Francisco", wineTasting, false},
		{"global reward ignores geo", inside, allOn, "", func() *domain.Reward {
			r := wineTasting()
			r.GeoScope = domain.GeoScopeGlobal
			return r
		}, true},
		{"country scope checks city field", inside, allOn, "USA", func() *domain.Reward {
			r := wineTasting()
			r.GeoScope = domain.GeoScopeCountry
			r.GeoCity = ""
			r.GeoCountry = "USA"
			return r
		}, false},
		{"open ended", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), allOn, "San Francisco", func() *domain.Reward {
			r := wineTasting()
			r.EndDate = nil
			return r
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldNotify(tt.now, tt.prefs, tt.geo, tt.reward())
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestShouldNotify_TimezoneMismatch(t *testing.T) {
	r := wineTasting()
	floatingNow := domain.AsFloating(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))

	_, err := ShouldNotify(floatingNow, allOn, "San Francisco", r)
	require.Error(t, err)

	var tzErr *TimezoneMismatchError
	require.True(t, errors.As(err, &tzErr))
	require.Equal(t, "start_date", tzErr.Field)
	require.True(t, tzErr.NowFloating)

	floatingStart := domain.AsFloating(r.StartDate)
	r.StartDate = floatingStart
	_, err = ShouldNotify(floatingNow, allOn, "San Francisco", r)
	require.True(t, errors.As(err, &tzErr))
	require.Equal(t, "end_date", tzErr.Field)
}

func TestNowFor(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	fixed := time.Date(2024, 6, 15, 16, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	aware := &domain.Reward{StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, ny)}
	now := NowFor(aware, clock)
	require.Equal(t, ny, now.Location())
	require.True(t, now.Equal(fixed))

	floating := &domain.Reward{StartDate: domain.AsFloating(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))}
	now = NowFor(floating, clock)
	require.True(t, domain.IsFloating(now))
	require.Equal(t, 16, now.Hour())

	end := domain.AsFloating(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	floating.EndDate = &end
	floating.GeoScope = domain.GeoScopeGlobal
	ok, err := ShouldNotify(now, allOn, "", floating)
	require.NoError(t, err)
	require.True(t, ok)
}
