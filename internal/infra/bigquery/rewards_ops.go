package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/effortless/internal/domain"
)

// ListRewardsWithClient returns every reward in catalog declaration order
// using the provided BigQuery client. Rows that fail to convert abort the
// read so a partial catalog is never published.
func ListRewardsWithClient(ctx context.Context, client *bigquery.Client, datasetID string) ([]domain.Reward, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			reward_id,
			merchant_name,
			reward_type,
			reward_label,
			reward_description,
			terms,
			category,
			start_date,
			end_date,
			max_savings_amount,
			geo_scope,
			geo_city,
			geo_country,
			is_auto_applicable,
			requires_user_opt_in,
			percentage_value,
			fixed_amount_value,
			position,
			created_ts
		FROM %s
		ORDER BY position, created_ts
	`, tableRef(client, datasetID, rewardsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRewardsWithClient: query read: %w", err)
	}

	var rewards []domain.Reward
	for {
		var row RewardRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRewardsWithClient: iter next: %w", err)
		}

		rw, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("ListRewardsWithClient: reward %s: %w", row.RewardID, err)
		}
		rewards = append(rewards, rw)
	}

	return rewards, nil
}

// InsertRewardsWithClient appends rewards to the catalog, keeping their order
// after any rewards already stored.
func InsertRewardsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, rewards []domain.Reward, firstPosition int64) error {
	if len(rewards) == 0 {
		return nil
	}

	rows := make([]*RewardRow, len(rewards))
	for i, rw := range rewards {
		rows[i] = RewardRowFromDomain(rw, firstPosition+int64(i))
	}

	inserter := client.Dataset(datasetID).Table(rewardsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertRewardsWithClient: inserting rows: %w", err)
	}
	return nil
}
