package bigquery

import (
	"context"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/effortless/internal/domain"
)

// RewardRepository provides an interface for reward catalog reads.
type RewardRepository interface {
	// ListRewards returns every reward in catalog declaration order.
	ListRewards(ctx context.Context) ([]domain.Reward, error)
}

// UserRepository provides an interface for user and preference operations.
type UserRepository interface {
	// GetUser returns the user with the given id, or an error wrapping
	// domain.ErrNotFound.
	GetUser(ctx context.Context, userID string) (domain.User, error)

	// ListUsers returns every user ordered by id.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// GetPreferences returns the stored preferences of a user. The bool is
	// false when the user has none stored.
	GetPreferences(ctx context.Context, userID string) (domain.Preferences, bool, error)

	// UpsertPreferences stores the preferences of a user.
	UpsertPreferences(ctx context.Context, prefs domain.Preferences) error
}

// TransactionRepository provides an interface for transaction operations.
type TransactionRepository interface {
	// QueryTransactionsByUser returns the user's transactions at or after
	// since, newest first. A zero since returns all of them.
	QueryTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error)

	// UpdateTransactionEnrichment persists the derived fields of tx.
	UpdateTransactionEnrichment(ctx context.Context, tx *domain.Transaction) error
}

// Repository is the full storage surface used by the API and the workers.
type Repository interface {
	RewardRepository
	UserRepository
	TransactionRepository
}

// RewardRow represents a reward record in BigQuery. Window bounds are stored
// as DATETIME and load as floating times.
type RewardRow struct {
	RewardID     string              `bigquery:"reward_id"`
	MerchantName string              `bigquery:"merchant_name"`
	RewardType   string              `bigquery:"reward_type"`
	RewardLabel  string              `bigquery:"reward_label"`
	Description  bigquery.NullString `bigquery:"reward_description"`
	Terms        bigquery.NullString `bigquery:"terms"`
	Category     bigquery.NullString `bigquery:"category"`

	StartDate civil.DateTime        `bigquery:"start_date"`
	EndDate   bigquery.NullDateTime `bigquery:"end_date"`

	MaxSavingsAmount *big.Rat `bigquery:"max_savings_amount"`

	GeoScope   string              `bigquery:"geo_scope"`
	GeoCity    bigquery.NullString `bigquery:"geo_city"`
	GeoCountry bigquery.NullString `bigquery:"geo_country"`

	IsAutoApplicable  bool `bigquery:"is_auto_applicable"`
	RequiresUserOptIn bool `bigquery:"requires_user_opt_in"`

	PercentageValue  *big.Rat `bigquery:"percentage_value"`
	FixedAmountValue *big.Rat `bigquery:"fixed_amount_value"`

	// Position preserves catalog declaration order.
	Position int64 `bigquery:"position"`

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
}

// TransactionRow represents a transaction record in BigQuery.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"`
	UserID        string `bigquery:"user_id"`
	CustomerID    string `bigquery:"customer_id"`
	AccountID     string `bigquery:"account_id"`

	PostedAt      civil.DateTime `bigquery:"posted_at"`
	TransactionAt civil.DateTime `bigquery:"transaction_at"`

	Description string              `bigquery:"description"`
	Memo        bigquery.NullString `bigquery:"memo"`

	ValueAmountUSD *big.Rat `bigquery:"value_amount_usd"`

	MerchantNormalized    bigquery.NullString `bigquery:"merchant_normalized"`
	Category              bigquery.NullString `bigquery:"category"`
	LocationInferred      bigquery.NullString `bigquery:"location_inferred"`
	MatchedRewardID       bigquery.NullString `bigquery:"matched_reward_id"`
	RewardApplied         bool                `bigquery:"reward_applied"`
	RewardSavingsAmount   *big.Rat            `bigquery:"reward_savings_amount"`
	NotificationTriggered bool                `bigquery:"notification_triggered"`

	CreatedTS time.Time              `bigquery:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// UserRow represents a user record in BigQuery.
type UserRow struct {
	UserID             string              `bigquery:"user_id"`
	CustomerID         string              `bigquery:"customer_id"`
	Name               string              `bigquery:"name"`
	Email              string              `bigquery:"email"`
	PrimaryGeoLocation bigquery.NullString `bigquery:"primary_geo_location"`
	CreatedTS          time.Time           `bigquery:"created_ts"`
}

// PreferenceRow represents a user preference record in BigQuery.
type PreferenceRow struct {
	UserID                        string                 `bigquery:"user_id"`
	NotificationsEnabled          bool                   `bigquery:"notifications_enabled"`
	PricelessGeoLocation          bigquery.NullString    `bigquery:"priceless_geo_location"`
	PricelessNotificationsEnabled bool                   `bigquery:"priceless_notifications_enabled"`
	AutoApplyRewardsEnabled       bool                   `bigquery:"auto_apply_rewards_enabled"`
	UpdatedTS                     bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// ToDomain converts the row into a catalog reward.
func (r *RewardRow) ToDomain() (domain.Reward, error) {
	rt, err := domain.ParseRewardType(r.RewardType)
	if err != nil {
		return domain.Reward{}, err
	}
	scope, err := domain.ParseGeoScope(r.GeoScope)
	if err != nil {
		return domain.Reward{}, err
	}

	rw := domain.Reward{
		ID:                r.RewardID,
		MerchantName:      r.MerchantName,
		Type:              rt,
		Label:             r.RewardLabel,
		Description:       r.Description.StringVal,
		Terms:             r.Terms.StringVal,
		Category:          r.Category.StringVal,
		StartDate:         floating(r.StartDate),
		MaxSavingsAmount:  ratToDecimal(r.MaxSavingsAmount),
		GeoScope:          scope,
		GeoCity:           r.GeoCity.StringVal,
		GeoCountry:        r.GeoCountry.StringVal,
		IsAutoApplicable:  r.IsAutoApplicable,
		RequiresUserOptIn: r.RequiresUserOptIn,
		PercentageValue:   ratToDecimal(r.PercentageValue),
		FixedAmountValue:  ratToDecimal(r.FixedAmountValue),
	}
	if r.EndDate.Valid {
		end := floating(r.EndDate.DateTime)
		rw.EndDate = &end
	}
	return rw, nil
}

// RewardRowFromDomain converts a reward into its row form. Offset-aware
// window bounds are stored as UTC wall-clock time.
func RewardRowFromDomain(rw domain.Reward, position int64) *RewardRow {
	row := &RewardRow{
		RewardID:          rw.ID,
		MerchantName:      rw.MerchantName,
		RewardType:        string(rw.Type),
		RewardLabel:       rw.Label,
		Description:       nullString(rw.Description),
		Terms:             nullString(rw.Terms),
		Category:          nullString(rw.Category),
		StartDate:         WallClock(rw.StartDate),
		MaxSavingsAmount:  decimalToRat(rw.MaxSavingsAmount),
		GeoScope:          string(rw.GeoScope),
		GeoCity:           nullString(rw.GeoCity),
		GeoCountry:        nullString(rw.GeoCountry),
		IsAutoApplicable:  rw.IsAutoApplicable,
		RequiresUserOptIn: rw.RequiresUserOptIn,
		PercentageValue:   decimalToRat(rw.PercentageValue),
		FixedAmountValue:  decimalToRat(rw.FixedAmountValue),
		Position:          position,
	}
	if row.GeoScope == "" {
		row.GeoScope = string(domain.GeoScopeGlobal)
	}
	if rw.EndDate != nil {
		row.EndDate = bigquery.NullDateTime{DateTime: WallClock(*rw.EndDate), Valid: true}
	}
	return row
}

// ToDomain converts the row into a transaction.
func (r *TransactionRow) ToDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:                    r.TransactionID,
		UserID:                r.UserID,
		CustomerID:            r.CustomerID,
		AccountID:             r.AccountID,
		PostedAt:              floating(r.PostedAt),
		TransactionAt:         floating(r.TransactionAt),
		Description:           r.Description,
		Memo:                  r.Memo.StringVal,
		MerchantNormalized:    stringPtr(r.MerchantNormalized),
		Category:              stringPtr(r.Category),
		LocationInferred:      stringPtr(r.LocationInferred),
		MatchedRewardID:       stringPtr(r.MatchedRewardID),
		RewardApplied:         r.RewardApplied,
		RewardSavingsAmount:   ratToDecimal(r.RewardSavingsAmount),
		NotificationTriggered: r.NotificationTriggered,
		CreatedAt:             r.CreatedTS,
	}
	if amt := ratToDecimal(r.ValueAmountUSD); amt != nil {
		tx.Amount = *amt
	}
	return tx
}

// TransactionRowFromDomain converts a transaction into its row form.
func TransactionRowFromDomain(tx *domain.Transaction) *TransactionRow {
	amount := tx.Amount
	row := &TransactionRow{
		TransactionID:         tx.ID,
		UserID:                tx.UserID,
		CustomerID:            tx.CustomerID,
		AccountID:             tx.AccountID,
		PostedAt:              WallClock(tx.PostedAt),
		TransactionAt:         WallClock(tx.TransactionAt),
		Description:           tx.Description,
		Memo:                  nullString(tx.Memo),
		ValueAmountUSD:        decimalToRat(&amount),
		MerchantNormalized:    nullStringPtr(tx.MerchantNormalized),
		Category:              nullStringPtr(tx.Category),
		LocationInferred:      nullStringPtr(tx.LocationInferred),
		MatchedRewardID:       nullStringPtr(tx.MatchedRewardID),
		RewardApplied:         tx.RewardApplied,
		RewardSavingsAmount:   decimalToRat(tx.RewardSavingsAmount),
		NotificationTriggered: tx.NotificationTriggered,
		CreatedTS:             tx.CreatedAt,
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = time.Now().UTC()
	}
	return row
}

// ToDomain converts the row into a user.
func (r *UserRow) ToDomain() domain.User {
	return domain.User{
		ID:                 r.UserID,
		CustomerID:         r.CustomerID,
		Name:               r.Name,
		Email:              r.Email,
		PrimaryGeoLocation: r.PrimaryGeoLocation.StringVal,
		CreatedAt:          r.CreatedTS,
	}
}

// ToDomain converts the row into user preferences.
func (r *PreferenceRow) ToDomain() domain.Preferences {
	p := domain.Preferences{
		UserID:                        r.UserID,
		NotificationsEnabled:          r.NotificationsEnabled,
		PricelessGeoLocation:          r.PricelessGeoLocation.StringVal,
		PricelessNotificationsEnabled: r.PricelessNotificationsEnabled,
		AutoApplyRewardsEnabled:       r.AutoApplyRewardsEnabled,
	}
	if r.UpdatedTS.Valid {
		p.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return p
}

// PreferenceRowFromDomain converts preferences into their row form.
func PreferenceRowFromDomain(p domain.Preferences) *PreferenceRow {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return &PreferenceRow{
		UserID:                        p.UserID,
		NotificationsEnabled:          p.NotificationsEnabled,
		PricelessGeoLocation:          nullString(p.PricelessGeoLocation),
		PricelessNotificationsEnabled: p.PricelessNotificationsEnabled,
		AutoApplyRewardsEnabled:       p.AutoApplyRewardsEnabled,
		UpdatedTS:                     bigquery.NullTimestamp{Timestamp: updated, Valid: true},
	}
}

func floating(dt civil.DateTime) time.Time {
	return dt.In(domain.Floating)
}

// WallClock converts t to a DATETIME value. Floating times keep their wall
// clock, aware times are converted to UTC first.
func WallClock(t time.Time) civil.DateTime {
	if !domain.IsFloating(t) {
		t = t.UTC()
	}
	return civil.DateTimeOf(t)
}

func ratToDecimal(r *big.Rat) *decimal.Decimal {
	if r == nil {
		return nil
	}
	d := decimal.NewFromBigRat(r, 9)
	return &d
}

func decimalToRat(d *decimal.Decimal) *big.Rat {
	if d == nil {
		return nil
	}
	return d.Rat()
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullStringPtr(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

// stringPtr maps NULL and blank values to nil.
func stringPtr(ns bigquery.NullString) *string {
	if !ns.Valid || strings.TrimSpace(ns.StringVal) == "" {
		return nil
	}
	return domain.StringPtr(ns.StringVal)
}

// UserRowFromDomain converts a user into its row form.
func UserRowFromDomain(u domain.User) *UserRow {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &UserRow{
		UserID:             u.ID,
		CustomerID:         u.CustomerID,
		Name:               u.Name,
		Email:              u.Email,
		PrimaryGeoLocation: nullString(u.PrimaryGeoLocation),
		CreatedTS:          created,
	}
}
