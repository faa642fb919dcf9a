package notionsync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/effortless/internal/logger"
)

// NotionClient implements NotionService on top of the notionapi client.
type NotionClient struct {
	api *notionapi.Client
}

// NewNotionClient creates a client for an integration token. Requests that
// hit the Notion rate limit are retried up to maxRetries times.
func NewNotionClient(token string, maxRetries int) *NotionClient {
	var opts []notionapi.ClientOption
	if maxRetries > 0 {
		opts = append(opts, notionapi.WithRetry(maxRetries))
	}
	return &NotionClient{api: notionapi.NewClient(notionapi.Token(token), opts...)}
}

// CheckDatabase fails when databaseID cannot be read or lacks any of the
// required properties.
func (n *NotionClient) CheckDatabase(ctx context.Context, databaseID string, required ...string) error {
	db, err := n.api.Database.Get(ctx, notionapi.DatabaseID(databaseID))
	if err != nil {
		return fmt.Errorf("CheckDatabase: %s: %w", databaseID, err)
	}

	var missing []string
	for _, name := range required {
		if _, ok := db.Properties[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("CheckDatabase: %s: missing properties %s", databaseID, strings.Join(missing, ", "))
	}
	return nil
}

func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("page_id", string(page.ID)).Msg("Created Notion page")
	return page, nil
}

func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: properties})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: %s: %w", pageID, err)
	}
	return page, nil
}

func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// ArchivePage moves a page to the trash. Notion pages cannot be hard deleted
// through the API.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	if _, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("ArchivePage: %s: %w", pageID, err)
	}
	return nil
}
