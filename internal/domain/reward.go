package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RewardType is the kind of value a reward delivers.
type RewardType string

const (
	// RewardTypePercentageCashback returns a percentage of the spend.
	RewardTypePercentageCashback RewardType = "percentage_cashback"
	// RewardTypeFixedAmount returns a flat amount per transaction.
	RewardTypeFixedAmount RewardType = "fixed_amount"
	// RewardTypeExperience is a non-monetary "priceless" experience.
	RewardTypeExperience RewardType = "experience"
)

// ParseRewardType converts a stored reward type into a RewardType.
func ParseRewardType(s string) (RewardType, error) {
	switch rt := RewardType(strings.ToLower(strings.TrimSpace(s))); rt {
	case RewardTypePercentageCashback, RewardTypeFixedAmount, RewardTypeExperience:
		return rt, nil
	default:
		return "", fmt.Errorf("ParseRewardType: unknown reward type %q", s)
	}
}

// IsMonetary reports whether savings can be computed for the type.
func (rt RewardType) IsMonetary() bool {
	return rt == RewardTypePercentageCashback || rt == RewardTypeFixedAmount
}

// GeoScope is the region a reward is valid in.
type GeoScope string

const (
	GeoScopeGlobal  GeoScope = "global"
	GeoScopeCity    GeoScope = "city"
	GeoScopeCountry GeoScope = "country"
)

// ParseGeoScope converts a stored geo scope into a GeoScope. An empty value
// means global.
func ParseGeoScope(s string) (GeoScope, error) {
	switch gs := GeoScope(strings.ToLower(strings.TrimSpace(s))); gs {
	case "":
		return GeoScopeGlobal, nil
	case GeoScopeGlobal, GeoScopeCity, GeoScopeCountry:
		return gs, nil
	default:
		return "", fmt.Errorf("ParseGeoScope: unknown geo scope %q", s)
	}
}

// Reward is a merchant offer from the catalog. The engine never mutates it.
type Reward struct {
	ID           string     `json:"id"`
	MerchantName string     `json:"merchant_name"`
	Type         RewardType `json:"reward_type"`
	Label        string     `json:"reward_label"`
	Description  string     `json:"reward_description,omitempty"`
	Terms        string     `json:"terms,omitempty"`
	Category     string     `json:"category,omitempty"`

	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	MaxSavingsAmount *decimal.Decimal `json:"max_savings_amount,omitempty"`

	GeoScope   GeoScope `json:"geo_scope"`
	GeoCity    string   `json:"geo_city,omitempty"`
	GeoCountry string   `json:"geo_country,omitempty"`

	IsAutoApplicable  bool `json:"is_auto_applicable"`
	RequiresUserOptIn bool `json:"requires_user_opt_in"`

	PercentageValue  *decimal.Decimal `json:"percentage_value,omitempty"`
	FixedAmountValue *decimal.Decimal `json:"fixed_amount_value,omitempty"`
}

// IsActive reports whether the reward is valid at t: start <= t and, when an
// end date is set, t <= end.
func (r *Reward) IsActive(t time.Time) bool {
	if t.Before(r.StartDate) {
		return false
	}
	return r.EndDate == nil || !t.After(*r.EndDate)
}

// IsGlobal reports whether the reward has no geographic restriction.
func (r *Reward) IsGlobal() bool {
	return r.GeoScope == "" || r.GeoScope == GeoScopeGlobal
}

// AutoApplicable reports whether the reward may be applied without any user
// action.
func (r *Reward) AutoApplicable() bool {
	return r.IsAutoApplicable && !r.RequiresUserOptIn
}
