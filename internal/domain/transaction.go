package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one card transaction as seen by the rewards engine.
// Identity fields are set once at ingestion. Derived fields (merchant,
// category, location and the reward outcome) are filled by the engine and
// are write-once: a populated field is never overwritten.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id,omitempty"`
	CustomerID    string          `json:"customer_id"`
	AccountID     string          `json:"account_id"`
	PostedAt      time.Time       `json:"posted_at"`
	TransactionAt time.Time       `json:"transaction_at"`
	Description   string          `json:"description"`
	Memo          string          `json:"memo,omitempty"`
	Amount        decimal.Decimal `json:"value_amount_usd"` // signed, negative for spend

	MerchantNormalized    *string          `json:"merchant_normalized,omitempty"`
	Category              *string          `json:"category,omitempty"`
	LocationInferred      *string          `json:"location_inferred,omitempty"`
	MatchedRewardID       *string          `json:"matched_reward_id,omitempty"`
	RewardApplied         bool             `json:"reward_applied"`
	RewardSavingsAmount   *decimal.Decimal `json:"reward_savings_amount,omitempty"`
	NotificationTriggered bool             `json:"notification_triggered"`

	CreatedAt time.Time `json:"created_at"`
}

// Record is the read-only capability every engine component consumes.
// Ingestion resolves CSV rows, warehouse rows and API payloads into a
// *Transaction once, so call sites never branch on representation.
type Record interface {
	// GetID returns the transaction identifier.
	GetID() string

	// GetDescription returns the raw description text.
	GetDescription() string

	// GetMemo returns the memo text, empty when absent.
	GetMemo() string

	// GetAmount returns the signed transaction amount in USD.
	GetAmount() decimal.Decimal

	// GetTransactionAt returns when the transaction happened.
	GetTransactionAt() time.Time

	// GetMerchant returns the normalized merchant, if derived.
	GetMerchant() (string, bool)

	// GetCategory returns the inferred category, if derived.
	GetCategory() (string, bool)
}

// GetID implements Record.
func (t *Transaction) GetID() string { return t.ID }

// GetDescription implements Record.
func (t *Transaction) GetDescription() string { return t.Description }

// GetMemo implements Record.
func (t *Transaction) GetMemo() string { return t.Memo }

// GetAmount implements Record.
func (t *Transaction) GetAmount() decimal.Decimal { return t.Amount }

// GetTransactionAt implements Record.
func (t *Transaction) GetTransactionAt() time.Time { return t.TransactionAt }

// GetMerchant implements Record.
func (t *Transaction) GetMerchant() (string, bool) { return deref(t.MerchantNormalized) }

// GetCategory implements Record.
func (t *Transaction) GetCategory() (string, bool) { return deref(t.Category) }

// GetLocation returns the inferred location, if derived.
func (t *Transaction) GetLocation() (string, bool) { return deref(t.LocationInferred) }

// IsSpend reports whether the transaction moves money out of the account.
func (t *Transaction) IsSpend() bool { return t.Amount.IsNegative() }

// IsMissedReward reports whether a reward was matched but never applied.
func (t *Transaction) IsMissedReward() bool {
	return t.MatchedRewardID != nil && !t.RewardApplied
}

// Clone returns a deep copy so callers can decorate a transaction without
// sharing derived-field pointers with the original.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.MerchantNormalized = cloneString(t.MerchantNormalized)
	c.Category = cloneString(t.Category)
	c.LocationInferred = cloneString(t.LocationInferred)
	c.MatchedRewardID = cloneString(t.MatchedRewardID)
	if t.RewardSavingsAmount != nil {
		v := *t.RewardSavingsAmount
		c.RewardSavingsAmount = &v
	}
	return &c
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

func deref(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ Record = (*Transaction)(nil)
