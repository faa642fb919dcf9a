package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/effortless/internal/domain"
)

// InsertTransactionsWithClient inserts a batch of transactions using the
// provided BigQuery client.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]*TransactionRow, len(txs))
	for i, tx := range txs {
		rows[i] = TransactionRowFromDomain(tx)
	}

	inserter := client.Dataset(datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactionsWithClient: inserting rows: %w", err)
	}
	return nil
}

// QueryTransactionsByUserWithClient returns a user's transactions at or after
// since, newest first.
func QueryTransactionsByUserWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, since time.Time) ([]*domain.Transaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			customer_id,
			account_id,
			posted_at,
			transaction_at,
			description,
			memo,
			value_amount_usd,
			merchant_normalized,
			category,
			location_inferred,
			matched_reward_id,
			reward_applied,
			reward_savings_amount,
			notification_triggered,
			created_ts,
			updated_ts
		FROM %s
		WHERE user_id = @user_id
		  AND transaction_at >= @since
		ORDER BY transaction_at DESC, created_ts DESC
	`, tableRef(client, datasetID, transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "since", Value: WallClock(since)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByUserWithClient: query read: %w", err)
	}

	var txs []*domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByUserWithClient: iter next: %w", err)
		}
		txs = append(txs, r.ToDomain())
	}

	return txs, nil
}

// UpdateTransactionEnrichmentWithClient persists the derived fields of tx.
// Columns that already hold a value keep it.
func UpdateTransactionEnrichmentWithClient(ctx context.Context, client *bigquery.Client, datasetID string, tx *domain.Transaction) error {
	row := TransactionRowFromDomain(tx)

	var savings bigquery.NullString
	if tx.RewardSavingsAmount != nil {
		savings = bigquery.NullString{StringVal: tx.RewardSavingsAmount.StringFixed(2), Valid: true}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET merchant_normalized = COALESCE(merchant_normalized, @merchant_normalized),
		    category = COALESCE(category, @category),
		    location_inferred = COALESCE(location_inferred, @location_inferred),
		    matched_reward_id = COALESCE(matched_reward_id, @matched_reward_id),
		    reward_applied = reward_applied OR @reward_applied,
		    reward_savings_amount = COALESCE(reward_savings_amount, SAFE_CAST(@reward_savings_amount AS NUMERIC)),
		    notification_triggered = notification_triggered OR @notification_triggered,
		    updated_ts = @updated_ts
		WHERE transaction_id = @transaction_id
	`, tableRef(client, datasetID, transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "merchant_normalized", Value: row.MerchantNormalized},
		{Name: "category", Value: row.Category},
		{Name: "location_inferred", Value: row.LocationInferred},
		{Name: "matched_reward_id", Value: row.MatchedRewardID},
		{Name: "reward_applied", Value: row.RewardApplied},
		{Name: "reward_savings_amount", Value: savings},
		{Name: "notification_triggered", Value: row.NotificationTriggered},
		{Name: "updated_ts", Value: time.Now().UTC()},
		{Name: "transaction_id", Value: row.TransactionID},
	}

	return runDML(ctx, q, "UpdateTransactionEnrichmentWithClient")
}
