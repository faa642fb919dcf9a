package domain

import "time"

// User is a cardholder.
type User struct {
	ID                 string    `json:"id"`
	CustomerID         string    `json:"customer_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	PrimaryGeoLocation string    `json:"primary_geo_location,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Preferences are the user's stored reward and notification settings.
type Preferences struct {
	UserID                        string    `json:"user_id"`
	NotificationsEnabled          bool      `json:"notifications_enabled"`
	PricelessGeoLocation          string    `json:"priceless_geo_location,omitempty"`
	PricelessNotificationsEnabled bool      `json:"priceless_notifications_enabled"`
	AutoApplyRewardsEnabled       bool      `json:"auto_apply_rewards_enabled"`
	UpdatedAt                     time.Time `json:"updated_at"`
}

// DefaultPreferences returns the settings used when a user has none stored:
// everything enabled and the priceless geo set to the user's primary geo.
func DefaultPreferences(u User) Preferences {
	return Preferences{
		UserID:                        u.ID,
		NotificationsEnabled:          true,
		PricelessGeoLocation:          u.PrimaryGeoLocation,
		PricelessNotificationsEnabled: true,
		AutoApplyRewardsEnabled:       true,
	}
}

// NotificationPrefs are the toggles consulted before surfacing an offer.
type NotificationPrefs struct {
	Enabled          bool `json:"enabled"`
	PricelessEnabled bool `json:"priceless_enabled"`
}

// UserContext is the resolved view of a user that the engine consumes.
type UserContext struct {
	UserID        string            `json:"user_id"`
	Name          string            `json:"name,omitempty"`
	Email         string            `json:"-"`
	Geo           string            `json:"geo,omitempty"`
	AutoApply     bool              `json:"auto_apply"`
	Notifications NotificationPrefs `json:"notifications"`
}
