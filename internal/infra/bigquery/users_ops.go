package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/effortless/internal/domain"
)

// GetUserWithClient returns the user with the given id.
func GetUserWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) (domain.User, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			user_id,
			customer_id,
			name,
			email,
			primary_geo_location,
			created_ts
		FROM %s
		WHERE user_id = @user_id
		LIMIT 1
	`, tableRef(client, datasetID, usersTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("GetUserWithClient: reading query: %w", err)
	}

	var row UserRow
	err = it.Next(&row)
	if err == iterator.Done {
		return domain.User{}, fmt.Errorf("GetUserWithClient: user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("GetUserWithClient: iterating: %w", err)
	}

	return row.ToDomain(), nil
}

// ListUsersWithClient returns every user ordered by id.
func ListUsersWithClient(ctx context.Context, client *bigquery.Client, datasetID string) ([]domain.User, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			user_id,
			customer_id,
			name,
			email,
			primary_geo_location,
			created_ts
		FROM %s
		ORDER BY user_id
	`, tableRef(client, datasetID, usersTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUsersWithClient: reading query: %w", err)
	}

	var users []domain.User
	for {
		var row UserRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUsersWithClient: iterating: %w", err)
		}
		users = append(users, row.ToDomain())
	}
	return users, nil
}

// GetPreferencesWithClient returns the stored preferences of a user. The bool
// is false when none are stored.
func GetPreferencesWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) (domain.Preferences, bool, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			user_id,
			notifications_enabled,
			priceless_geo_location,
			priceless_notifications_enabled,
			auto_apply_rewards_enabled,
			updated_ts
		FROM %s
		WHERE user_id = @user_id
		ORDER BY updated_ts DESC
		LIMIT 1
	`, tableRef(client, datasetID, preferencesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return domain.Preferences{}, false, fmt.Errorf("GetPreferencesWithClient: reading query: %w", err)
	}

	var row PreferenceRow
	err = it.Next(&row)
	if err == iterator.Done {
		return domain.Preferences{}, false, nil
	}
	if err != nil {
		return domain.Preferences{}, false, fmt.Errorf("GetPreferencesWithClient: iterating: %w", err)
	}

	return row.ToDomain(), true, nil
}

// UpsertPreferencesWithClient stores a user's preferences, replacing any
// existing row.
func UpsertPreferencesWithClient(ctx context.Context, client *bigquery.Client, datasetID string, prefs domain.Preferences) error {
	row := PreferenceRowFromDomain(prefs)

	q := client.Query(fmt.Sprintf(`
		MERGE %s AS target
		USING (SELECT @user_id AS user_id) AS source
		ON target.user_id = source.user_id
		WHEN MATCHED THEN
		  UPDATE SET
		    notifications_enabled = @notifications_enabled,
		    priceless_geo_location = @priceless_geo_location,
		    priceless_notifications_enabled = @priceless_notifications_enabled,
		    auto_apply_rewards_enabled = @auto_apply_rewards_enabled,
		    updated_ts = @updated_ts
		WHEN NOT MATCHED THEN
		  INSERT (user_id, notifications_enabled, priceless_geo_location,
		          priceless_notifications_enabled, auto_apply_rewards_enabled, updated_ts)
		  VALUES (@user_id, @notifications_enabled, @priceless_geo_location,
		          @priceless_notifications_enabled, @auto_apply_rewards_enabled, @updated_ts)
	`, tableRef(client, datasetID, preferencesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: row.UserID},
		{Name: "notifications_enabled", Value: row.NotificationsEnabled},
		{Name: "priceless_geo_location", Value: row.PricelessGeoLocation},
		{Name: "priceless_notifications_enabled", Value: row.PricelessNotificationsEnabled},
		{Name: "auto_apply_rewards_enabled", Value: row.AutoApplyRewardsEnabled},
		{Name: "updated_ts", Value: row.UpdatedTS.Timestamp},
	}

	return runDML(ctx, q, "UpsertPreferencesWithClient")
}

// InsertUsersWithClient inserts users using the provided BigQuery client.
func InsertUsersWithClient(ctx context.Context, client *bigquery.Client, datasetID string, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}

	rows := make([]*UserRow, len(users))
	for i, u := range users {
		rows[i] = UserRowFromDomain(u)
	}

	inserter := client.Dataset(datasetID).Table(usersTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertUsersWithClient: inserting rows: %w", err)
	}
	return nil
}
