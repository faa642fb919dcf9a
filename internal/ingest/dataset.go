package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/storage"

	bq "github.com/dvloznov/effortless/internal/bigquery"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/gcs"
	"github.com/dvloznov/effortless/internal/gcsuploader"
	"github.com/dvloznov/effortless/internal/logger"
)

// Dataset file names.
const (
	UsersFile        = "users.csv"
	PreferencesFile  = "preferences.csv"
	TransactionsFile = "transactions.csv"
	RewardsFile      = "rewards.csv"
)

// Dataset is an in-memory store of users, preferences, transactions and
// rewards. It serves the same repository surface as the warehouse, so the
// API and workers run unchanged on a CSV snapshot.
type Dataset struct {
	mu           sync.RWMutex
	users        []domain.User
	prefs        map[string]domain.Preferences
	transactions []*domain.Transaction
	rewards      []domain.Reward

	// RowErrors lists the malformed rows skipped while loading, per file.
	RowErrors map[string][]*RowError
}

var _ bq.Repository = (*Dataset)(nil)

// NewDataset builds a dataset from already resolved values. Transactions
// without a user id are linked to the user with the same customer id.
func NewDataset(users []domain.User, prefs []domain.Preferences, txs []*domain.Transaction, rewards []domain.Reward) *Dataset {
	d := &Dataset{
		users:     append([]domain.User(nil), users...),
		prefs:     make(map[string]domain.Preferences, len(prefs)),
		rewards:   append([]domain.Reward(nil), rewards...),
		RowErrors: map[string][]*RowError{},
	}
	for _, p := range prefs {
		d.prefs[p.UserID] = p
	}

	byCustomer := make(map[string]string, len(users))
	for _, u := range users {
		byCustomer[u.CustomerID] = u.ID
	}
	for _, tx := range txs {
		c := tx.Clone()
		if c.UserID == "" {
			c.UserID = byCustomer[c.CustomerID]
		}
		d.transactions = append(d.transactions, c)
	}
	return d
}

// LoadDataset reads the four dataset files from a local directory or a
// gs://bucket/prefix. preferences.csv is optional; the others are required.
// store is only used for gs:// sources and may be nil otherwise.
func LoadDataset(ctx context.Context, source string, store gcs.ObjectStore) (*Dataset, error) {
	log := logger.FromContext(ctx)

	read := func(name string) ([]byte, error) {
		if gcsuploader.IsURI(source) {
			if store == nil {
				return nil, fmt.Errorf("no object store for %s", source)
			}
			data, err := store.Fetch(ctx, gcsuploader.JoinURI(source, name))
			if errors.Is(err, storage.ErrObjectNotExist) {
				return nil, fs.ErrNotExist
			}
			return data, err
		}
		return os.ReadFile(filepath.Join(source, name))
	}

	rowErrors := map[string][]*RowError{}

	usersData, err := read(UsersFile)
	if err != nil {
		return nil, fmt.Errorf("LoadDataset: reading %s: %w", UsersFile, err)
	}
	users, rerrs, err := ParseUsersCSV(bytes.NewReader(usersData))
	if err != nil {
		return nil, fmt.Errorf("LoadDataset: %w", err)
	}
	rowErrors[UsersFile] = rerrs

	var prefs []domain.Preferences
	prefsData, err := read(PreferencesFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("source", source).Msg("No preferences file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("LoadDataset: reading %s: %w", PreferencesFile, err)
	default:
		prefs, rerrs, err = ParsePreferencesCSV(bytes.NewReader(prefsData))
		if err != nil {
			return nil, fmt.Errorf("LoadDataset: %w", err)
		}
		rowErrors[PreferencesFile] = rerrs
	}

	txData, err := read(TransactionsFile)
	if err != nil {
		return nil, fmt.Errorf("LoadDataset: reading %s: %w", TransactionsFile, err)
	}
	txs, rerrs, err := ParseTransactionsCSV(bytes.NewReader(txData))
	if err != nil {
		return nil, fmt.Errorf("LoadDataset: %w", err)
	}
	rowErrors[TransactionsFile] = rerrs

	rewardsData, err := read(RewardsFile)
	if err != nil {
		return nil, fmt.Errorf("LoadDataset: reading %s: %w", RewardsFile, err)
	}
	rewards, rerrs, err := ParseRewardsCSV(bytes.NewReader(rewardsData))
	if err != nil {
		return nil, fmt.Errorf("LoadDataset: %w", err)
	}
	rowErrors[RewardsFile] = rerrs

	d := NewDataset(users, prefs, txs, rewards)
	d.RowErrors = rowErrors

	for file, errs := range rowErrors {
		for _, re := range errs {
			log.Warn().Str("file", file).Int("row", re.Row).Err(re.Err).Msg("Skipping malformed row")
		}
	}
	log.Info().
		Str("source", source).
		Int("users", len(users)).
		Int("transactions", len(txs)).
		Int("rewards", len(rewards)).
		Msg("Dataset loaded")

	return d, nil
}

// Users returns all users in file order.
func (d *Dataset) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.User(nil), d.users...)
}

// Transactions returns copies of all transactions in file order.
func (d *Dataset) Transactions() []*domain.Transaction {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*domain.Transaction, len(d.transactions))
	for i, tx := range d.transactions {
		out[i] = tx.Clone()
	}
	return out
}

// ListRewards returns the rewards in file order.
func (d *Dataset) ListRewards(ctx context.Context) ([]domain.Reward, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Reward(nil), d.rewards...), nil
}

// GetUser returns the user with the given id.
func (d *Dataset) GetUser(ctx context.Context, userID string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("GetUser: user %s: %w", userID, domain.ErrNotFound)
}

// ListUsers returns every user ordered by id.
func (d *Dataset) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := d.Users()
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// GetPreferences returns the stored preferences of a user.
func (d *Dataset) GetPreferences(ctx context.Context, userID string) (domain.Preferences, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.prefs[userID]
	return p, ok, nil
}

// UpsertPreferences stores the preferences of a user.
func (d *Dataset) UpsertPreferences(ctx context.Context, prefs domain.Preferences) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prefs.UpdatedAt.IsZero() {
		prefs.UpdatedAt = time.Now().UTC()
	}
	d.prefs[prefs.UserID] = prefs
	return nil
}

// QueryTransactionsByUser returns copies of the user's transactions at or
// after since, newest first.
func (d *Dataset) QueryTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*domain.Transaction
	for _, tx := range d.transactions {
		if tx.UserID != userID {
			continue
		}
		if !since.IsZero() && tx.TransactionAt.Before(since) {
			continue
		}
		out = append(out, tx.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TransactionAt.After(out[j].TransactionAt)
	})
	return out, nil
}

// UpdateTransactionEnrichment copies the derived fields of tx onto the
// stored transaction. Fields already set on the stored copy are kept.
func (d *Dataset) UpdateTransactionEnrichment(ctx context.Context, tx *domain.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, stored := range d.transactions {
		if stored.ID != tx.ID {
			continue
		}
		src := tx.Clone()
		if stored.MerchantNormalized == nil {
			stored.MerchantNormalized = src.MerchantNormalized
		}
		if stored.Category == nil {
			stored.Category = src.Category
		}
		if stored.LocationInferred == nil {
			stored.LocationInferred = src.LocationInferred
		}
		if stored.MatchedRewardID == nil {
			stored.MatchedRewardID = src.MatchedRewardID
		}
		if stored.RewardSavingsAmount == nil {
			stored.RewardSavingsAmount = src.RewardSavingsAmount
		}
		stored.RewardApplied = stored.RewardApplied || src.RewardApplied
		stored.NotificationTriggered = stored.NotificationTriggered || src.NotificationTriggered
		return nil
	}
	return fmt.Errorf("UpdateTransactionEnrichment: transaction %s: %w", tx.ID, domain.ErrNotFound)
}
