package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/effortless/internal/catalog"
	"github.com/dvloznov/effortless/internal/dispatch"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/enrichment"
	"github.com/dvloznov/effortless/internal/ingest"
	"github.com/dvloznov/effortless/internal/matching"
	"github.com/dvloznov/effortless/internal/prefs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDispatcher records notifications and delegates to DispatchFunc.
type mockDispatcher struct {
	mu           sync.Mutex
	sent         []dispatch.Notification
	DispatchFunc func(ctx context.Context, n dispatch.Notification) error
}

func (m *mockDispatcher) Dispatch(ctx context.Context, n dispatch.Notification) error {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, n)
	}
	return nil
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var (
	rewardStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fixedNow    = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return fixedNow }

func starbucksReward() domain.Reward {
	pct := decimal.NewFromInt(5)
	limit := decimal.NewFromInt(50)
	return domain.Reward{
		ID:               "r-sbux",
		MerchantName:     "Starbucks",
		Type:             domain.RewardTypePercentageCashback,
		Label:            "5% back at Starbucks",
		Category:         "dining",
		StartDate:        rewardStart,
		GeoScope:         domain.GeoScopeGlobal,
		IsAutoApplicable: true,
		PercentageValue:  &pct,
		MaxSavingsAmount: &limit,
	}
}

func coffeeTx(id, amount string) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		TransactionAt: rewardStart.AddDate(0, 0, 9),
		Description:   "STARBUCKS #1234 SAN FRANCISCO",
		Amount:        decimal.RequireFromString(amount),
	}
}

func newStore(rewards ...domain.Reward) *catalog.Store {
	s := catalog.NewStore()
	s.Replace(rewards)
	return s
}

func TestPipeline_Execute_WrapsStepError(t *testing.T) {
	p := NewPipeline(&EnrichStep{Engine: enrichment.NewEngine(enrichment.DefaultTables())})

	err := p.Execute(context.Background(), &PipelineState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 1 failed")
}

func TestTransactionPipeline_AutoApplies(t *testing.T) {
	snap := catalog.NewSnapshot([]domain.Reward{starbucksReward()}, time.Now())
	disp := &mockDispatcher{}
	p := NewTransactionPipeline(enrichment.NewEngine(enrichment.DefaultTables()), matching.NewMatcher(snap), fixedClock, disp)

	state := &PipelineState{
		Transaction: coffeeTx("tx-1", "-40.00"),
		User:        domain.UserContext{UserID: "u1", AutoApply: true, Notifications: domain.NotificationPrefs{Enabled: true}},
	}
	require.NoError(t, p.Execute(context.Background(), state))

	tx := state.Transaction
	require.Equal(t, "Starbucks", *tx.MerchantNormalized)
	require.Equal(t, "dining", *tx.Category)
	require.Equal(t, "San Francisco", *tx.LocationInferred)
	require.True(t, tx.RewardApplied)
	require.Equal(t, "2.00", tx.RewardSavingsAmount.StringFixed(2))
	require.Empty(t, state.Decisions)
	require.Zero(t, disp.count())
}

func TestTransactionPipeline_NotifiesMissedReward(t *testing.T) {
	snap := catalog.NewSnapshot([]domain.Reward{starbucksReward()}, time.Now())
	disp := &mockDispatcher{}
	p := NewTransactionPipeline(enrichment.NewEngine(enrichment.DefaultTables()), matching.NewMatcher(snap), fixedClock, disp)

	state := &PipelineState{
		Transaction: coffeeTx("tx-1", "-40.00"),
		User: domain.UserContext{
			UserID:        "u1",
			Name:          "Sarah",
			Email:         "sarah@example.com",
			Notifications: domain.NotificationPrefs{Enabled: true, PricelessEnabled: true},
		},
	}
	require.NoError(t, p.Execute(context.Background(), state))

	require.False(t, state.Transaction.RewardApplied)
	require.True(t, state.Transaction.NotificationTriggered)
	require.True(t, state.Notified)
	require.Len(t, state.Decisions, 1)
	require.True(t, state.Decisions[0].Notify)
	require.True(t, state.Decisions[0].Dispatched)
	require.Equal(t, 1, disp.count())
	require.Equal(t, "sarah@example.com", disp.sent[0].Email)
	require.Equal(t, "tx-1", disp.sent[0].TransactionID)
}

func TestTransactionPipeline_DispatchFailureIsRecorded(t *testing.T) {
	snap := catalog.NewSnapshot([]domain.Reward{starbucksReward()}, time.Now())
	disp := &mockDispatcher{DispatchFunc: func(ctx context.Context, n dispatch.Notification) error {
		return errors.New("smtp down")
	}}
	p := NewTransactionPipeline(enrichment.NewEngine(enrichment.DefaultTables()), matching.NewMatcher(snap), fixedClock, disp)

	state := &PipelineState{
		Transaction: coffeeTx("tx-1", "-40.00"),
		User:        domain.UserContext{UserID: "u1", Notifications: domain.NotificationPrefs{Enabled: true, PricelessEnabled: true}},
	}
	require.NoError(t, p.Execute(context.Background(), state))
	require.Len(t, state.Decisions, 1)
	require.True(t, state.Decisions[0].Notify)
	require.False(t, state.Decisions[0].Dispatched)
	require.ErrorContains(t, state.Decisions[0].Err, "smtp down")
	require.False(t, state.Transaction.NotificationTriggered, "failed deliveries are retried on the next run")
}

func TestTransactionPipeline_NotificationsDisabled(t *testing.T) {
	snap := catalog.NewSnapshot([]domain.Reward{starbucksReward()}, time.Now())
	disp := &mockDispatcher{}
	p := NewTransactionPipeline(enrichment.NewEngine(enrichment.DefaultTables()), matching.NewMatcher(snap), fixedClock, disp)

	state := &PipelineState{
		Transaction: coffeeTx("tx-1", "-40.00"),
		User:        domain.UserContext{UserID: "u1"},
	}
	require.NoError(t, p.Execute(context.Background(), state))
	require.Len(t, state.Decisions, 1)
	require.False(t, state.Decisions[0].Notify)
	require.Zero(t, disp.count())
}

func TestBatchProcessor_Process(t *testing.T) {
	store := newStore(starbucksReward())
	bp := NewBatchProcessor(enrichment.NewEngine(enrichment.DefaultTables()), store, WithWorkers(4), WithClock(fixedClock))

	user := domain.UserContext{UserID: "u1", AutoApply: true}
	items := []Item{
		{Transaction: coffeeTx("tx-1", "-40.00"), User: user},
		{Transaction: coffeeTx("tx-2", "-2000.00"), User: user},
		{Transaction: &domain.Transaction{ID: "tx-3", Description: "ACME PAYROLL", Amount: decimal.NewFromInt(1500)}, User: user},
	}

	res := bp.Process(context.Background(), items)
	require.NoError(t, res.Err())
	require.Equal(t, store.Current().Version(), res.CatalogVersion)
	require.Len(t, res.Items, 3)

	for i, it := range res.Items {
		require.Equal(t, i, it.Index)
		require.Equal(t, items[i].Transaction.ID, it.TransactionID)
	}
	require.Equal(t, "2.00", res.Items[0].Transaction.RewardSavingsAmount.StringFixed(2))
	require.Equal(t, "50.00", res.Items[1].Transaction.RewardSavingsAmount.StringFixed(2))
	require.Nil(t, res.Items[2].Match.Applied)

	// inputs are left untouched
	require.Nil(t, items[0].Transaction.MerchantNormalized)
	require.False(t, items[0].Transaction.RewardApplied)
}

func TestBatchProcessor_IsolatesFailures(t *testing.T) {
	store := newStore(starbucksReward())
	disp := &mockDispatcher{DispatchFunc: func(ctx context.Context, n dispatch.Notification) error {
		if n.TransactionID == "tx-bad" {
			panic("boom")
		}
		return nil
	}}
	bp := NewBatchProcessor(enrichment.NewEngine(enrichment.DefaultTables()), store,
		WithWorkers(2), WithClock(fixedClock), WithDispatcher(disp))

	user := domain.UserContext{UserID: "u1", Notifications: domain.NotificationPrefs{Enabled: true, PricelessEnabled: true}}
	items := []Item{
		{Transaction: coffeeTx("tx-ok", "-10.00"), User: user},
		{Transaction: coffeeTx("tx-bad", "-10.00"), User: user},
		{Transaction: nil, User: user},
		{Transaction: coffeeTx("tx-ok-2", "-10.00"), User: user},
	}

	res := bp.Process(context.Background(), items)
	require.Len(t, res.Failed(), 2)
	require.NoError(t, res.Items[0].Err)
	require.ErrorContains(t, res.Items[1].Err, "panic: boom")
	require.Error(t, res.Items[2].Err)
	require.NoError(t, res.Items[3].Err)
	require.True(t, res.Items[3].Decisions[0].Dispatched)

	var be *BatchError
	require.ErrorAs(t, res.Err(), &be)
	require.Len(t, be.Errors, 2)
	require.Contains(t, be.Error(), "2 transactions failed")
}

func TestBatchProcessor_BindsOneSnapshot(t *testing.T) {
	store := newStore(starbucksReward())
	version := store.Current().Version()

	// The first notification swaps in an empty catalog; later items in the
	// same batch must still see the original rewards.
	var once sync.Once
	disp := &mockDispatcher{DispatchFunc: func(ctx context.Context, n dispatch.Notification) error {
		once.Do(func() { store.Replace(nil) })
		return nil
	}}
	bp := NewBatchProcessor(enrichment.NewEngine(enrichment.DefaultTables()), store,
		WithWorkers(1), WithClock(fixedClock), WithDispatcher(disp))

	user := domain.UserContext{UserID: "u1", Notifications: domain.NotificationPrefs{Enabled: true, PricelessEnabled: true}}
	items := []Item{
		{Transaction: coffeeTx("tx-1", "-10.00"), User: user},
		{Transaction: coffeeTx("tx-2", "-10.00"), User: user},
		{Transaction: coffeeTx("tx-3", "-10.00"), User: user},
	}

	res := bp.Process(context.Background(), items)
	require.NoError(t, res.Err())
	require.Equal(t, version, res.CatalogVersion)
	require.NotEqual(t, version, store.Current().Version())
	for _, it := range res.Items {
		require.Len(t, it.Match.Missed, 1, it.TransactionID)
	}
	require.Equal(t, 3, disp.count())
}

func TestBatchProcessor_CancelledContext(t *testing.T) {
	store := newStore(starbucksReward())
	bp := NewBatchProcessor(enrichment.NewEngine(enrichment.DefaultTables()), store, WithClock(fixedClock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := bp.Process(ctx, []Item{{Transaction: coffeeTx("tx-1", "-10.00")}})
	require.ErrorIs(t, res.Items[0].Err, context.Canceled)
	require.ErrorIs(t, res.Err(), context.Canceled)
}

func TestBatchError_Single(t *testing.T) {
	be := &BatchError{}
	require.NoError(t, be.asError())

	be.append(errors.New("only"))
	require.Equal(t, "only", be.Error())
}

func TestEnricher_EnrichUser(t *testing.T) {
	ctx := context.Background()
	data := ingest.NewDataset(
		[]domain.User{{ID: "u1", CustomerID: "1001", Name: "Sarah", Email: "sarah@example.com"}},
		nil,
		[]*domain.Transaction{
			withCustomer(coffeeTx("tx-1", "-40.00"), "1001"),
			{ID: "tx-2", CustomerID: "1001", Description: "ACME PAYROLL", Amount: decimal.NewFromInt(1500), TransactionAt: rewardStart.AddDate(0, 0, 3)},
		},
		nil,
	)

	e := &Enricher{
		Transactions: data,
		Users:        prefs.NewResolver(data, time.Minute),
		Processor:    NewBatchProcessor(enrichment.NewEngine(enrichment.DefaultTables()), newStore(starbucksReward()), WithClock(fixedClock)),
	}

	report, err := e.EnrichUser(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Applied)
	// the payroll credit is saved too: it gains the merchant "Acme"
	assert.Equal(t, 2, report.Saved)
	assert.Zero(t, report.Failed)

	txs, err := data.QueryTransactionsByUser(ctx, "u1", time.Time{})
	require.NoError(t, err)
	var coffee *domain.Transaction
	for _, tx := range txs {
		if tx.ID == "tx-1" {
			coffee = tx
		}
	}
	require.NotNil(t, coffee)
	assert.True(t, coffee.RewardApplied)
	assert.Equal(t, "r-sbux", *coffee.MatchedRewardID)
	assert.Equal(t, "2.00", coffee.RewardSavingsAmount.StringFixed(2))

	// a second run finds nothing new to apply
	report, err = e.EnrichUser(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, report.Applied)
}

func TestTransactionPipeline_SkipsAlreadyNotified(t *testing.T) {
	snap := catalog.NewSnapshot([]domain.Reward{starbucksReward()}, time.Now())
	disp := &mockDispatcher{}
	p := NewTransactionPipeline(enrichment.NewEngine(enrichment.DefaultTables()), matching.NewMatcher(snap), fixedClock, disp)

	tx := coffeeTx("tx-1", "-40.00")
	tx.NotificationTriggered = true
	state := &PipelineState{
		Transaction: tx,
		User:        domain.UserContext{UserID: "u1", Notifications: domain.NotificationPrefs{Enabled: true, PricelessEnabled: true}},
	}
	require.NoError(t, p.Execute(context.Background(), state))
	require.Len(t, state.Match.Missed, 1)
	require.Empty(t, state.Decisions)
	require.False(t, state.Notified)
	require.Zero(t, disp.count())
}

func TestEnricher_NotifiesOncePerTransaction(t *testing.T) {
	ctx := context.Background()
	data := ingest.NewDataset(
		[]domain.User{{ID: "u1", CustomerID: "1001", Name: "Sarah", Email: "sarah@example.com"}},
		[]domain.Preferences{{
			UserID:                        "u1",
			NotificationsEnabled:          true,
			PricelessNotificationsEnabled: true,
			AutoApplyRewardsEnabled:       false,
		}},
		[]*domain.Transaction{withCustomer(coffeeTx("tx-1", "-40.00"), "1001")},
		nil,
	)

	disp := &mockDispatcher{}
	e := &Enricher{
		Transactions: data,
		Users:        prefs.NewResolver(data, time.Minute),
		Processor: NewBatchProcessor(enrichment.NewEngine(enrichment.DefaultTables()), newStore(starbucksReward()),
			WithClock(fixedClock), WithDispatcher(disp)),
	}

	first, err := e.EnrichUser(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Notified)

	for round := 0; round < 2; round++ {
		report, err := e.EnrichUser(ctx, "u1", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Missed)
		assert.Zero(t, report.Notified)
		assert.Zero(t, report.Saved)
	}
	assert.Equal(t, 1, disp.count())

	txs, err := data.QueryTransactionsByUser(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].NotificationTriggered)
	assert.False(t, txs[0].RewardApplied)
}

func TestEnricher_UnknownUser(t *testing.T) {
	data := ingest.NewDataset(nil, nil, nil, nil)
	e := &Enricher{
		Transactions: data,
		Users:        prefs.NewResolver(data, time.Minute),
		Processor:    NewBatchProcessor(enrichment.NewEngine(enrichment.DefaultTables()), newStore()),
	}
	_, err := e.EnrichUser(context.Background(), "ghost", time.Time{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func withCustomer(tx *domain.Transaction, customerID string) *domain.Transaction {
	tx.CustomerID = customerID
	return tx
}
