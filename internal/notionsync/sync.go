package notionsync

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/logger"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100

	pageSize = 100
)

// Result counts the page operations of one sync.
type Result struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// Options control a transaction sync.
type Options struct {
	// Since limits the sync to transactions at or after it. Zero means all.
	Since time.Time

	// Prune archives pages whose transaction is not part of this sync.
	// Only use it when every user is synced.
	Prune bool

	DryRun bool
}

// SyncRewards mirrors the reward catalog into a Notion database, creating
// pages for new rewards and updating the rest. It returns the reward id to
// page id mapping used to link transactions. In dry run mode the mapping
// only holds pages that already exist.
func SyncRewards(ctx context.Context, rewards []domain.Reward, notionClient NotionService, notionDBID string, dryRun bool) (map[string]string, *Result, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Int("reward_count", len(rewards)).
		Bool("dry_run", dryRun).
		Msg("Starting rewards sync to Notion")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, nil, fmt.Errorf("SyncRewards: %w", err)
	}

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if id := plainText(page, PropRewardID); id != "" {
			existing[id] = string(page.ID)
		}
	}

	res := &Result{}
	pageIDs := make(map[string]string, len(rewards))
	for i := range rewards {
		r := &rewards[i]
		pageID, found := existing[r.ID]

		if dryRun {
			if found {
				pageIDs[r.ID] = pageID
				log.Info().Str("reward_id", r.ID).Str("page_id", pageID).Msg("[DRY RUN] Would update reward page")
				res.Updated++
			} else {
				log.Info().Str("reward_id", r.ID).Msg("[DRY RUN] Would create reward page")
				res.Created++
			}
			continue
		}

		props := RewardToNotionProperties(r)
		if found {
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("reward_id", r.ID).Str("page_id", pageID).Msg("Failed to update reward page")
				res.Failed++
				continue
			}
			pageIDs[r.ID] = pageID
			res.Updated++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().Err(err).Str("reward_id", r.ID).Msg("Failed to create reward page")
			res.Failed++
			continue
		}
		pageIDs[r.ID] = string(page.ID)
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Msg("Rewards sync completed")

	return pageIDs, res, nil
}

// SyncTransactions pushes the decorated transactions of the given users into
// a Notion database. Pages are keyed by the Transaction ID property: new
// transactions get a page and existing pages are updated with the current
// enrichment and reward outcome. Per-page failures are counted and logged;
// only failing to read a user's transactions or the database aborts the sync.
func SyncTransactions(ctx context.Context, src TransactionSource, userIDs []string, notionClient NotionService, notionDBID string, rewardPages map[string]string, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Int("users", len(userIDs)).
		Time("since", opts.Since).
		Bool("prune", opts.Prune).
		Bool("dry_run", opts.DryRun).
		Int("reward_mappings", len(rewardPages)).
		Msg("Starting transaction sync to Notion")

	var transactions []*domain.Transaction
	for _, userID := range userIDs {
		txs, err := src.QueryTransactionsByUser(ctx, userID, opts.Since)
		if err != nil {
			return nil, fmt.Errorf("SyncTransactions: querying transactions of %s: %w", userID, err)
		}
		transactions = append(transactions, txs...)
	}

	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	valid := make(map[string]bool, len(transactions))
	for _, tx := range transactions {
		valid[tx.ID] = true
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]string, len(notionPages))
	res := &Result{}
	for _, page := range notionPages {
		txID := plainText(page, PropTransactionID)
		if txID != "" && existing[txID] == "" {
			existing[txID] = string(page.ID)
			if valid[txID] || !opts.Prune {
				continue
			}
		} else if !opts.Prune {
			continue
		}

		// Pages without a transaction id, duplicates and stale transactions.
		if opts.DryRun {
			log.Info().Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for i := 0; i < len(transactions); i += BatchSize {
		end := min(i+BatchSize, len(transactions))
		batch := transactions[i:end]
		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, tx := range batch {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("SyncTransactions: %w", err)
			}

			pageID, found := existing[tx.ID]
			if opts.DryRun {
				if found {
					res.Updated++
				} else {
					res.Created++
				}
				continue
			}

			txLog := logger.WithTransaction(log, tx.ID, tx.UserID)
			props := TransactionToNotionProperties(tx, rewardPages)
			if found {
				if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
					txLog.Warn().Err(err).Str("page_id", pageID).Msg("Failed to update Notion page")
					res.Failed++
					continue
				}
				res.Updated++
				continue
			}

			page, err := notionClient.CreatePage(ctx, notionDBID, props)
			if err != nil {
				txLog.Warn().Err(err).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			txLog.Debug().Str("page_id", string(page.ID)).Msg("Created Notion page")
			res.Created++
		}
	}

	log.Info().
		Int("archived", res.Archived).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int("total", len(transactions)).
		Msg("Transaction sync completed")

	return res, nil
}

// queryAllNotionPages pages through the whole database.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: pageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
