// Package catalog exposes the reward catalog as immutable, versioned
// snapshots that can be filtered per transaction.
package catalog

import (
	"strings"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/google/uuid"
)

// Accessor is the read-only catalog view consumed by the matcher.
type Accessor interface {
	// ActiveCandidates returns the rewards that are active at the
	// transaction time, relevant to its merchant or category, and valid in
	// the user's geo. Catalog order is preserved.
	ActiveCandidates(tx domain.Record, userGeo string) []domain.Reward
}

// Snapshot is an immutable copy of the catalog. Every snapshot carries a
// unique version token so a batch can record which catalog it ran against.
type Snapshot struct {
	version  string
	loadedAt time.Time
	rewards  []domain.Reward
	byID     map[string]int
}

// NewSnapshot copies rewards into a new snapshot. The order of rewards is
// the catalog declaration order.
func NewSnapshot(rewards []domain.Reward, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		version:  uuid.NewString(),
		loadedAt: loadedAt,
		rewards:  make([]domain.Reward, len(rewards)),
		byID:     make(map[string]int, len(rewards)),
	}
	for i, r := range rewards {
		s.rewards[i] = cloneReward(r)
		if _, dup := s.byID[r.ID]; !dup {
			s.byID[r.ID] = i
		}
	}
	return s
}

// Version returns the snapshot's version token.
func (s *Snapshot) Version() string { return s.version }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of rewards in the snapshot.
func (s *Snapshot) Len() int { return len(s.rewards) }

// Rewards returns all rewards in catalog order.
func (s *Snapshot) Rewards() []domain.Reward {
	return append([]domain.Reward(nil), s.rewards...)
}

// Get returns the reward with the given ID.
func (s *Snapshot) Get(id string) (domain.Reward, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Reward{}, false
	}
	return s.rewards[i], true
}

// Active returns the rewards active at t, optionally limited to a category.
func (s *Snapshot) Active(at time.Time, category string) []domain.Reward {
	var out []domain.Reward
	for i := range s.rewards {
		r := &s.rewards[i]
		if !r.IsActive(at) {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// ActiveNow is Active with now read in each reward's own offset awareness:
// rewards with floating dates are compared against the wall clock of now.
func (s *Snapshot) ActiveNow(now time.Time, category string) []domain.Reward {
	floating := domain.AsFloating(now)
	var out []domain.Reward
	for i := range s.rewards {
		r := &s.rewards[i]
		at := now
		if domain.IsFloating(r.StartDate) {
			at = floating
		}
		if !r.IsActive(at) {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// ActiveCandidates implements Accessor. Filters run in a fixed order:
// temporal, relevance, geo.
func (s *Snapshot) ActiveCandidates(tx domain.Record, userGeo string) []domain.Reward {
	merchant, _ := tx.GetMerchant()
	category, _ := tx.GetCategory()
	merchant = strings.ToLower(strings.TrimSpace(merchant))
	if merchant == "" && category == "" {
		return nil
	}

	at := tx.GetTransactionAt()
	geo := strings.ToLower(strings.TrimSpace(userGeo))

	var out []domain.Reward
	for i := range s.rewards {
		r := &s.rewards[i]
		if !r.IsActive(at) {
			continue
		}
		if !relevant(r, merchant, category) {
			continue
		}
		if !inGeo(r, geo) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// relevant reports whether the merchant is contained in the reward's
// merchant name or the categories are equal. merchant is lower-case.
func relevant(r *domain.Reward, merchant, category string) bool {
	if merchant != "" && strings.Contains(strings.ToLower(r.MerchantName), merchant) {
		return true
	}
	return category != "" && r.Category == category
}

// inGeo reports whether a reward is valid for a lower-case user geo.
func inGeo(r *domain.Reward, geo string) bool {
	if r.IsGlobal() {
		return true
	}
	if geo == "" {
		return false
	}
	return strings.Contains(strings.ToLower(r.GeoCity), geo) ||
		strings.Contains(strings.ToLower(r.GeoCountry), geo)
}

func cloneReward(r domain.Reward) domain.Reward {
	if r.EndDate != nil {
		end := *r.EndDate
		r.EndDate = &end
	}
	if r.MaxSavingsAmount != nil {
		v := *r.MaxSavingsAmount
		r.MaxSavingsAmount = &v
	}
	if r.PercentageValue != nil {
		v := *r.PercentageValue
		r.PercentageValue = &v
	}
	if r.FixedAmountValue != nil {
		v := *r.FixedAmountValue
		r.FixedAmountValue = &v
	}
	return r
}

var _ Accessor = (*Snapshot)(nil)
