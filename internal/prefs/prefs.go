package prefs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dvloznov/effortless/internal/domain"
)

// Source reads users and their stored preferences.
type Source interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetPreferences(ctx context.Context, userID string) (domain.Preferences, bool, error)
}

// Store is a Source that can also persist preferences.
type Store interface {
	Source
	UpsertPreferences(ctx context.Context, prefs domain.Preferences) error
}

// Resolve builds the engine's view of a user. The priceless geo preference
// overrides the user's primary geo when set.
func Resolve(u domain.User, p domain.Preferences) domain.UserContext {
	geo := strings.TrimSpace(p.PricelessGeoLocation)
	if geo == "" {
		geo = u.PrimaryGeoLocation
	}
	return domain.UserContext{
		UserID:    u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Geo:       geo,
		AutoApply: p.AutoApplyRewardsEnabled,
		Notifications: domain.NotificationPrefs{
			Enabled:          p.NotificationsEnabled,
			PricelessEnabled: p.PricelessNotificationsEnabled,
		},
	}
}

// Patch is a partial preferences update. Nil fields are left unchanged.
type Patch struct {
	NotificationsEnabled          *bool   `json:"notifications_enabled,omitempty"`
	PricelessGeoLocation          *string `json:"priceless_geo_location,omitempty"`
	PricelessNotificationsEnabled *bool   `json:"priceless_notifications_enabled,omitempty"`
	AutoApplyRewardsEnabled       *bool   `json:"auto_apply_rewards_enabled,omitempty"`
}

// Apply returns p with the patch applied.
func (pt Patch) Apply(p domain.Preferences) domain.Preferences {
	if pt.NotificationsEnabled != nil {
		p.NotificationsEnabled = *pt.NotificationsEnabled
	}
	if pt.PricelessGeoLocation != nil {
		p.PricelessGeoLocation = strings.TrimSpace(*pt.PricelessGeoLocation)
	}
	if pt.PricelessNotificationsEnabled != nil {
		p.PricelessNotificationsEnabled = *pt.PricelessNotificationsEnabled
	}
	if pt.AutoApplyRewardsEnabled != nil {
		p.AutoApplyRewardsEnabled = *pt.AutoApplyRewardsEnabled
	}
	return p
}

// entry is what the resolver caches per user.
type entry struct {
	user  domain.User
	prefs domain.Preferences
}

// Resolver resolves user contexts through a TTL cache.
type Resolver struct {
	store Store
	cache *cache.Cache
	now   func() time.Time
}

// NewResolver creates a resolver whose entries expire after ttl.
func NewResolver(store Store, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		store: store,
		cache: cache.New(ttl, 2*ttl),
		now:   time.Now,
	}
}

func (r *Resolver) load(ctx context.Context, userID string) (entry, error) {
	if v, ok := r.cache.Get(userID); ok {
		return v.(entry), nil
	}

	u, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return entry{}, fmt.Errorf("Resolver: loading user: %w", err)
	}
	p, ok, err := r.store.GetPreferences(ctx, userID)
	if err != nil {
		return entry{}, fmt.Errorf("Resolver: loading preferences: %w", err)
	}
	if !ok {
		p = domain.DefaultPreferences(u)
	}

	e := entry{user: u, prefs: p}
	r.cache.SetDefault(userID, e)
	return e, nil
}

// User returns the user with the given id.
func (r *Resolver) User(ctx context.Context, userID string) (domain.User, error) {
	e, err := r.load(ctx, userID)
	return e.user, err
}

// Preferences returns the user's stored preferences, or the defaults when
// none are stored.
func (r *Resolver) Preferences(ctx context.Context, userID string) (domain.Preferences, error) {
	e, err := r.load(ctx, userID)
	return e.prefs, err
}

// Resolve returns the engine's view of the user.
func (r *Resolver) Resolve(ctx context.Context, userID string) (domain.UserContext, error) {
	e, err := r.load(ctx, userID)
	if err != nil {
		return domain.UserContext{}, err
	}
	return Resolve(e.user, e.prefs), nil
}

// Update applies a patch to the user's preferences, persists them and
// refreshes the cache.
func (r *Resolver) Update(ctx context.Context, userID string, patch Patch) (domain.Preferences, error) {
	r.Invalidate(userID)
	e, err := r.load(ctx, userID)
	if err != nil {
		return domain.Preferences{}, err
	}

	p := patch.Apply(e.prefs)
	p.UserID = userID
	p.UpdatedAt = r.now().UTC()
	if err := r.store.UpsertPreferences(ctx, p); err != nil {
		return domain.Preferences{}, fmt.Errorf("Resolver: saving preferences: %w", err)
	}

	r.cache.SetDefault(userID, entry{user: e.user, prefs: p})
	return p, nil
}

// Invalidate drops the cached entry for a user.
func (r *Resolver) Invalidate(userID string) {
	r.cache.Delete(userID)
}
