package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/effortless/internal/catalog"
	"github.com/dvloznov/effortless/internal/dispatch"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/enrichment"
	"github.com/dvloznov/effortless/internal/logger"
	"github.com/dvloznov/effortless/internal/matching"
	"github.com/dvloznov/effortless/internal/notify"
)

// SnapshotSource yields the catalog snapshot a batch is bound to.
type SnapshotSource interface {
	Current() *catalog.Snapshot
}

// Item is one transaction together with the user it belongs to.
type Item struct {
	Transaction *domain.Transaction
	User        domain.UserContext
}

// ItemResult is the outcome of processing one item. Transaction is a
// processed copy; the caller's input is never mutated.
type ItemResult struct {
	Index         int
	TransactionID string
	Transaction   *domain.Transaction
	Enrichment    enrichment.Changes
	Match         matching.Result
	Decisions     []NotificationDecision
	Notified      bool
	Err           error
}

// BatchResult collects per-item results in input order.
type BatchResult struct {
	CatalogVersion string
	Items          []ItemResult
}

// Failed returns the results whose processing failed.
func (r *BatchResult) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Err aggregates item failures into a *BatchError, or nil if every item
// succeeded.
func (r *BatchResult) Err() error {
	be := &BatchError{}
	for _, it := range r.Items {
		if it.Err != nil {
			be.append(fmt.Errorf("transaction %s: %w", it.TransactionID, it.Err))
		}
	}
	return be.asError()
}

// BatchError aggregates the errors of failed items.
type BatchError struct {
	Errors []error
}

func (e *BatchError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d transactions failed: ", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString(err.Error())
		b.WriteString("; ")
	}
	return b.String()
}

func (e *BatchError) Unwrap() []error { return e.Errors }

func (e *BatchError) append(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *BatchError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// BatchProcessor runs the transaction pipeline over many items concurrently.
type BatchProcessor struct {
	engine     *enrichment.Engine
	catalog    SnapshotSource
	clock      notify.Clock
	dispatcher dispatch.Dispatcher
	workers    int
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithWorkers bounds the number of items processed at once.
func WithWorkers(n int) BatchOption {
	return func(p *BatchProcessor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithClock overrides the wall clock used for notification decisions.
func WithClock(c notify.Clock) BatchOption {
	return func(p *BatchProcessor) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithDispatcher delivers positive notification decisions.
func WithDispatcher(d dispatch.Dispatcher) BatchOption {
	return func(p *BatchProcessor) { p.dispatcher = d }
}

// NewBatchProcessor creates a processor bound to the given engine and catalog.
func NewBatchProcessor(engine *enrichment.Engine, cat SnapshotSource, opts ...BatchOption) *BatchProcessor {
	p := &BatchProcessor{
		engine:  engine,
		catalog: cat,
		clock:   time.Now,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process enriches, matches and evaluates notifications for every item.
// All items see the same catalog snapshot, taken once at the start, even if
// the catalog is replaced mid-run. A failure or panic in one item is recorded
// on that item and never aborts the others. Items not yet started when ctx is
// cancelled fail with the context error.
func (p *BatchProcessor) Process(ctx context.Context, items []Item) *BatchResult {
	log := logger.FromContext(ctx)
	start := time.Now()

	snap := p.catalog.Current()
	pipe := NewTransactionPipeline(p.engine, matching.NewMatcher(snap), p.clock, p.dispatcher)

	result := &BatchResult{
		CatalogVersion: snap.Version(),
		Items:          make([]ItemResult, len(items)),
	}

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i := range items {
		g.Go(func() error {
			result.Items[i] = p.processItem(ctx, pipe, i, items[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := len(result.Failed())
	log.Info().
		Str("catalog_version", result.CatalogVersion).
		Int("transactions", len(items)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch processed")

	return result
}

func (p *BatchProcessor) processItem(ctx context.Context, pipe *Pipeline, i int, it Item) (res ItemResult) {
	res.Index = i
	if it.Transaction == nil {
		res.Err = errors.New("missing transaction")
		return res
	}
	res.TransactionID = it.Transaction.ID

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	log := logger.WithTransaction(logger.FromContext(ctx), it.Transaction.ID, it.User.UserID)
	itemCtx := logger.WithContext(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			log.Error().Interface("panic", r).Msg("Transaction processing panicked")
		}
	}()

	state := &PipelineState{
		Transaction: it.Transaction.Clone(),
		User:        it.User,
	}
	if err := pipe.Execute(itemCtx, state); err != nil {
		log.Error().Err(err).Msg("Transaction processing failed")
		res.Err = err
		return res
	}

	res.Transaction = state.Transaction
	res.Enrichment = state.Enrichment
	res.Match = state.Match
	res.Decisions = state.Decisions
	res.Notified = state.Notified
	return res
}
