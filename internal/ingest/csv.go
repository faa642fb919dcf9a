package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/effortless/internal/domain"
)

// RowError describes one malformed CSV row. Row is the 1-based line number,
// counting the header.
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d %s: %v", e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

var errRequired = errors.New("value is required")

// record is one CSV row addressed by header name.
type record struct {
	line   int
	fields []string
	cols   map[string]int
}

func (r record) str(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r record) fail(col string, err error) *RowError {
	return &RowError{Row: r.line, Column: col, Err: err}
}

func (r record) required(col string) (string, *RowError) {
	v := r.str(col)
	if v == "" {
		return "", r.fail(col, errRequired)
	}
	return v, nil
}

func (r record) optionalString(col string) *string {
	if v := r.str(col); v != "" {
		return domain.StringPtr(v)
	}
	return nil
}

func (r record) decimal(col string) (decimal.Decimal, *RowError) {
	v, rerr := r.required(col)
	if rerr != nil {
		return decimal.Zero, rerr
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
	if err != nil {
		return decimal.Zero, r.fail(col, err)
	}
	return d, nil
}

func (r record) optionalDecimal(col string) (*decimal.Decimal, *RowError) {
	if r.str(col) == "" {
		return nil, nil
	}
	d, rerr := r.decimal(col)
	if rerr != nil {
		return nil, rerr
	}
	return &d, nil
}

func (r record) bool(col string, def bool) (bool, *RowError) {
	v := r.str(col)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, r.fail(col, err)
	}
	return b, nil
}

func (r record) timestamp(col string) (time.Time, bool, *RowError) {
	v := r.str(col)
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseTimestamp(v)
	if err != nil {
		return time.Time{}, false, r.fail(col, err)
	}
	return t, true, nil
}

// readCSV reads a header row and calls fn for every following row. Rows that
// the CSV reader itself rejects are reported and skipped.
func readCSV(r io.Reader, fn func(record) *RowError) ([]*RowError, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("readCSV: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("readCSV: reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[name] = i
	}

	var rowErrs []*RowError
	line := 1
	for {
		line++
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Row: line, Err: err})
			continue
		}
		if rerr := fn(record{line: line, fields: fields, cols: cols}); rerr != nil {
			rowErrs = append(rowErrs, rerr)
		}
	}
	return rowErrs, nil
}

// ParseTransactionsCSV resolves transaction rows into domain transactions.
// Columns: id, customer_id, account_id, posted_at, transaction_at,
// value_amount_usd (or amount), description, memo and, optionally, the derived
// columns merchant_normalized, category, location_inferred,
// matched_reward_id, reward_applied, reward_savings_amount,
// notification_triggered. Rows without an id get a generated one.
func ParseTransactionsCSV(r io.Reader) ([]*domain.Transaction, []*RowError, error) {
	var out []*domain.Transaction

	rowErrs, err := readCSV(r, func(rec record) *RowError {
		tx := &domain.Transaction{
			ID:                 rec.str("id"),
			CustomerID:         rec.str("customer_id"),
			AccountID:          rec.str("account_id"),
			Memo:               rec.str("memo"),
			MerchantNormalized: rec.optionalString("merchant_normalized"),
			Category:           rec.optionalString("category"),
			LocationInferred:   rec.optionalString("location_inferred"),
			MatchedRewardID:    rec.optionalString("matched_reward_id"),
		}
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}

		var rerr *RowError
		if tx.Description, rerr = rec.required("description"); rerr != nil {
			return rerr
		}

		amountCol := "value_amount_usd"
		if _, ok := rec.cols[amountCol]; !ok {
			amountCol = "amount"
		}
		if tx.Amount, rerr = rec.decimal(amountCol); rerr != nil {
			return rerr
		}

		at, ok, rerr := rec.timestamp("transaction_at")
		if rerr != nil {
			return rerr
		}
		if !ok {
			return rec.fail("transaction_at", errRequired)
		}
		tx.TransactionAt = at

		posted, ok, rerr := rec.timestamp("posted_at")
		if rerr != nil {
			return rerr
		}
		if ok {
			tx.PostedAt = posted
		} else {
			tx.PostedAt = tx.TransactionAt
		}

		if tx.RewardApplied, rerr = rec.bool("reward_applied", false); rerr != nil {
			return rerr
		}
		if tx.NotificationTriggered, rerr = rec.bool("notification_triggered", false); rerr != nil {
			return rerr
		}
		if tx.RewardSavingsAmount, rerr = rec.optionalDecimal("reward_savings_amount"); rerr != nil {
			return rerr
		}

		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ParseTransactionsCSV: %w", err)
	}
	return out, rowErrs, nil
}

// ParseRewardsCSV resolves reward rows into catalog rewards, in file order.
func ParseRewardsCSV(r io.Reader) ([]domain.Reward, []*RowError, error) {
	var out []domain.Reward

	rowErrs, err := readCSV(r, func(rec record) *RowError {
		rw := domain.Reward{
			ID:           rec.str("id"),
			MerchantName: rec.str("merchant_name"),
			Label:        rec.str("reward_label"),
			Description:  rec.str("reward_description"),
			Terms:        rec.str("terms"),
			Category:     rec.str("category"),
			GeoCity:      rec.str("geo_city"),
			GeoCountry:   rec.str("geo_country"),
		}
		if rw.ID == "" {
			rw.ID = uuid.NewString()
		}
		if rw.MerchantName == "" {
			return rec.fail("merchant_name", errRequired)
		}

		var err error
		if rw.Type, err = domain.ParseRewardType(rec.str("reward_type")); err != nil {
			return rec.fail("reward_type", err)
		}
		if rw.GeoScope, err = domain.ParseGeoScope(rec.str("geo_scope")); err != nil {
			return rec.fail("geo_scope", err)
		}

		start, ok, rerr := rec.timestamp("start_date")
		if rerr != nil {
			return rerr
		}
		if !ok {
			return rec.fail("start_date", errRequired)
		}
		rw.StartDate = start

		end, ok, rerr := rec.timestamp("end_date")
		if rerr != nil {
			return rerr
		}
		if ok {
			rw.EndDate = &end
		}

		if rw.MaxSavingsAmount, rerr = rec.optionalDecimal("max_savings_amount"); rerr != nil {
			return rerr
		}
		if rw.PercentageValue, rerr = rec.optionalDecimal("percentage_value"); rerr != nil {
			return rerr
		}
		if rw.FixedAmountValue, rerr = rec.optionalDecimal("fixed_amount_value"); rerr != nil {
			return rerr
		}
		if rw.IsAutoApplicable, rerr = rec.bool("is_auto_applicable", false); rerr != nil {
			return rerr
		}
		if rw.RequiresUserOptIn, rerr = rec.bool("requires_user_opt_in", false); rerr != nil {
			return rerr
		}

		out = append(out, rw)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ParseRewardsCSV: %w", err)
	}
	return out, rowErrs, nil
}

// ParseUsersCSV resolves user rows. id and customer_id are required.
func ParseUsersCSV(r io.Reader) ([]domain.User, []*RowError, error) {
	var out []domain.User

	rowErrs, err := readCSV(r, func(rec record) *RowError {
		u := domain.User{
			Name:               rec.str("name"),
			Email:              rec.str("email"),
			PrimaryGeoLocation: rec.str("primary_geo_location"),
		}
		var rerr *RowError
		if u.ID, rerr = rec.required("id"); rerr != nil {
			return rerr
		}
		if u.CustomerID, rerr = rec.required("customer_id"); rerr != nil {
			return rerr
		}
		created, _, rerr := rec.timestamp("created_at")
		if rerr != nil {
			return rerr
		}
		u.CreatedAt = created

		out = append(out, u)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ParseUsersCSV: %w", err)
	}
	return out, rowErrs, nil
}

// ParsePreferencesCSV resolves preference rows. Missing toggles default to
// enabled.
func ParsePreferencesCSV(r io.Reader) ([]domain.Preferences, []*RowError, error) {
	var out []domain.Preferences

	rowErrs, err := readCSV(r, func(rec record) *RowError {
		p := domain.Preferences{PricelessGeoLocation: rec.str("priceless_geo_location")}

		var rerr *RowError
		if p.UserID, rerr = rec.required("user_id"); rerr != nil {
			return rerr
		}
		if p.NotificationsEnabled, rerr = rec.bool("notifications_enabled", true); rerr != nil {
			return rerr
		}
		if p.PricelessNotificationsEnabled, rerr = rec.bool("priceless_notifications_enabled", true); rerr != nil {
			return rerr
		}
		if p.AutoApplyRewardsEnabled, rerr = rec.bool("auto_apply_rewards_enabled", true); rerr != nil {
			return rerr
		}
		updated, _, rerr := rec.timestamp("updated_at")
		if rerr != nil {
			return rerr
		}
		p.UpdatedAt = updated

		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ParsePreferencesCSV: %w", err)
	}
	return out, rowErrs, nil
}
