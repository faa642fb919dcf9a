package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/effortless/internal/bigquery"
	"github.com/dvloznov/effortless/internal/domain"
)

// Re-export row types and interfaces from the shared package
type (
	RewardRow      = bq.RewardRow
	TransactionRow = bq.TransactionRow
	UserRow        = bq.UserRow
	PreferenceRow  = bq.PreferenceRow

	Repository = bq.Repository
)

var (
	RewardRowFromDomain      = bq.RewardRowFromDomain
	TransactionRowFromDomain = bq.TransactionRowFromDomain
	UserRowFromDomain        = bq.UserRowFromDomain
	PreferenceRowFromDomain  = bq.PreferenceRowFromDomain
	WallClock                = bq.WallClock
)

// BigQueryRepository is the concrete implementation of Repository that
// interacts with BigQuery. It holds a shared BigQuery client to avoid
// creating a new connection for each operation.
type BigQueryRepository struct {
	client    *bigquery.Client
	datasetID string
}

var _ Repository = (*BigQueryRepository)(nil)

// NewBigQueryRepository creates a repository with a shared BigQuery client.
func NewBigQueryRepository(ctx context.Context, projectID, datasetID string) (*BigQueryRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: creating client: %w", err)
	}
	return &BigQueryRepository{client: client, datasetID: datasetID}, nil
}

// Client returns the shared BigQuery client.
func (r *BigQueryRepository) Client() *bigquery.Client {
	return r.client
}

// Close closes the BigQuery client connection.
func (r *BigQueryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ListRewards delegates to ListRewardsWithClient with the shared client.
func (r *BigQueryRepository) ListRewards(ctx context.Context) ([]domain.Reward, error) {
	return ListRewardsWithClient(ctx, r.client, r.datasetID)
}

// InsertRewards delegates to InsertRewardsWithClient with the shared client.
func (r *BigQueryRepository) InsertRewards(ctx context.Context, rewards []domain.Reward, firstPosition int64) error {
	return InsertRewardsWithClient(ctx, r.client, r.datasetID, rewards, firstPosition)
}

// GetUser delegates to GetUserWithClient with the shared client.
func (r *BigQueryRepository) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return GetUserWithClient(ctx, r.client, r.datasetID, userID)
}

// ListUsers delegates to ListUsersWithClient with the shared client.
func (r *BigQueryRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	return ListUsersWithClient(ctx, r.client, r.datasetID)
}

// InsertUsers delegates to InsertUsersWithClient with the shared client.
func (r *BigQueryRepository) InsertUsers(ctx context.Context, users []domain.User) error {
	return InsertUsersWithClient(ctx, r.client, r.datasetID, users)
}

// GetPreferences delegates to GetPreferencesWithClient with the shared client.
func (r *BigQueryRepository) GetPreferences(ctx context.Context, userID string) (domain.Preferences, bool, error) {
	return GetPreferencesWithClient(ctx, r.client, r.datasetID, userID)
}

// UpsertPreferences delegates to UpsertPreferencesWithClient with the shared client.
func (r *BigQueryRepository) UpsertPreferences(ctx context.Context, prefs domain.Preferences) error {
	return UpsertPreferencesWithClient(ctx, r.client, r.datasetID, prefs)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (r *BigQueryRepository) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	return InsertTransactionsWithClient(ctx, r.client, r.datasetID, txs)
}

// QueryTransactionsByUser delegates to QueryTransactionsByUserWithClient with the shared client.
func (r *BigQueryRepository) QueryTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error) {
	return QueryTransactionsByUserWithClient(ctx, r.client, r.datasetID, userID, since)
}

// UpdateTransactionEnrichment delegates to UpdateTransactionEnrichmentWithClient with the shared client.
func (r *BigQueryRepository) UpdateTransactionEnrichment(ctx context.Context, tx *domain.Transaction) error {
	return UpdateTransactionEnrichmentWithClient(ctx, r.client, r.datasetID, tx)
}
