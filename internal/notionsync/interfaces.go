package notionsync

import (
	"context"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/effortless/internal/domain"
)

// NotionService is the subset of the Notion API the sync uses.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// UpdatePage updates an existing Notion page with the given properties.
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage moves a page to the trash.
	ArchivePage(ctx context.Context, pageID string) error
}

// TransactionSource reads decorated transactions for a user.
type TransactionSource interface {
	QueryTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error)
}

var _ NotionService = (*NotionClient)(nil)
