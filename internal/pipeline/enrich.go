package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/logger"
)

// TransactionStore reads a user's transactions and persists derived fields.
type TransactionStore interface {
	QueryTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error)
	UpdateTransactionEnrichment(ctx context.Context, tx *domain.Transaction) error
}

// UserResolver resolves the engine's view of a user.
type UserResolver interface {
	Resolve(ctx context.Context, userID string) (domain.UserContext, error)
}

// Report summarizes one enrichment run over a user's transactions.
type Report struct {
	UserID         string `json:"user_id"`
	CatalogVersion string `json:"catalog_version"`
	Processed      int    `json:"processed"`
	Enriched       int    `json:"enriched"`
	Applied        int    `json:"applied"`
	Missed         int    `json:"missed"`
	Notified       int    `json:"notified"`
	Failed         int    `json:"failed"`
	Saved          int    `json:"saved"`
}

// Enricher runs the batch processor over a user's stored transactions and
// writes the derived fields back.
type Enricher struct {
	Transactions TransactionStore
	Users        UserResolver
	Processor    *BatchProcessor
}

// EnrichUser processes every transaction of userID at or after since. Item
// failures are counted in the report and returned as a *BatchError; the
// successful items are still persisted.
func (e *Enricher) EnrichUser(ctx context.Context, userID string, since time.Time) (*Report, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()
	ctx = logger.WithContext(ctx, log)

	user, err := e.Users.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("EnrichUser: resolving user: %w", err)
	}

	txs, err := e.Transactions.QueryTransactionsByUser(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("EnrichUser: loading transactions: %w", err)
	}

	items := make([]Item, len(txs))
	for i, tx := range txs {
		items[i] = Item{Transaction: tx, User: user}
	}

	res := e.Processor.Process(ctx, items)
	report := &Report{UserID: userID, CatalogVersion: res.CatalogVersion, Processed: len(items)}

	for _, it := range res.Items {
		if it.Err != nil {
			report.Failed++
			continue
		}
		if it.Enrichment.Any() {
			report.Enriched++
		}
		if it.Match.Applied != nil {
			report.Applied++
		}
		report.Missed += len(it.Match.Missed)
		for _, d := range it.Decisions {
			if d.Dispatched {
				report.Notified++
			}
		}

		if !it.Enrichment.Any() && it.Match.Applied == nil && !it.Notified {
			continue
		}
		if err := e.Transactions.UpdateTransactionEnrichment(ctx, it.Transaction); err != nil {
			return report, fmt.Errorf("EnrichUser: saving transaction %s: %w", it.TransactionID, err)
		}
		report.Saved++
	}

	log.Info().
		Int("processed", report.Processed).
		Int("applied", report.Applied).
		Int("notified", report.Notified).
		Int("failed", report.Failed).
		Msg("User transactions enriched")

	return report, res.Err()
}
