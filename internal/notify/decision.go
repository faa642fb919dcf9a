// Package notify decides whether an opt-in reward should be surfaced to a
// user.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
)

// TimezoneMismatchError is returned when "now" and a reward boundary differ
// in offset awareness. Comparing them would silently shift the validity
// window, so the caller has to compute "now" correctly instead.
type TimezoneMismatchError struct {
	RewardID    string
	Field       string
	NowFloating bool
}

func (e *TimezoneMismatchError) Error() string {
	now, field := "offset-aware", "floating"
	if e.NowFloating {
		now, field = "floating", "offset-aware"
	}
	return fmt.Sprintf("reward %s: now is %s but %s is %s", e.RewardID, now, e.Field, field)
}

// Clock returns the current time.
type Clock func() time.Time

// NowFor returns the current time with the same offset awareness as the
// reward's start date: a floating wall-clock reading for floating rewards,
// otherwise the instant in the start date's location.
func NowFor(r *domain.Reward, clock Clock) time.Time {
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	if domain.IsFloating(r.StartDate) {
		return domain.AsFloating(now)
	}
	return now.In(r.StartDate.Location())
}

// ShouldNotify reports whether r should be surfaced to a user with the given
// notification preferences and geo at time now.
//
// It is false when global or priceless notifications are off, when a
// geo-scoped reward's city does not contain the user's geo (or the geo is
// unknown), and when now falls outside the reward's validity window.
func ShouldNotify(now time.Time, prefs domain.NotificationPrefs, userGeo string, r *domain.Reward) (bool, error) {
	if err := checkAwareness(now, r); err != nil {
		return false, err
	}

	if !prefs.Enabled || !prefs.PricelessEnabled {
		return false, nil
	}

	if !r.IsGlobal() {
		geo := strings.ToLower(strings.TrimSpace(userGeo))
		if geo == "" || !strings.Contains(strings.ToLower(r.GeoCity), geo) {
			return false, nil
		}
	}

	if now.Before(r.StartDate) {
		return false, nil
	}
	if r.EndDate != nil && now.After(*r.EndDate) {
		return false, nil
	}

	return true, nil
}

func checkAwareness(now time.Time, r *domain.Reward) error {
	nowFloating := domain.IsFloating(now)
	if domain.IsFloating(r.StartDate) != nowFloating {
		return &TimezoneMismatchError{RewardID: r.ID, Field: "start_date", NowFloating: nowFloating}
	}
	if r.EndDate != nil && domain.IsFloating(*r.EndDate) != nowFloating {
		return &TimezoneMismatchError{RewardID: r.ID, Field: "end_date", NowFloating: nowFloating}
	}
	return nil
}
