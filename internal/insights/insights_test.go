package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/dvloznov/effortless/internal/domain"
)

var now = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return domain.AsFloating(now.AddDate(0, 0, -n))
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sampleTransactions() []*domain.Transaction {
	return []*domain.Transaction{
		{ID: "auto-1", Amount: decimal.RequireFromString("-40"), TransactionAt: daysAgo(1),
			Category: domain.StringPtr("dining"), MerchantNormalized: domain.StringPtr("Starbucks"),
			MatchedRewardID: domain.StringPtr("r1"), RewardApplied: true, RewardSavingsAmount: dec("2.00")},
		{ID: "auto-2", Amount: decimal.RequireFromString("-100"), TransactionAt: daysAgo(2),
			Category: domain.StringPtr("travel"), MerchantNormalized: domain.StringPtr("Uber"),
			MatchedRewardID: domain.StringPtr("r2"), RewardApplied: true, RewardSavingsAmount: dec("10.00")},
		{ID: "notified", Amount: decimal.RequireFromString("-60"), TransactionAt: daysAgo(3),
			MatchedRewardID: domain.StringPtr("r3"), RewardApplied: true, NotificationTriggered: true,
			RewardSavingsAmount: dec("6.00")},
		{ID: "missed", Amount: decimal.RequireFromString("-20"), TransactionAt: daysAgo(4),
			Category: domain.StringPtr("dining"), MatchedRewardID: domain.StringPtr("r1")},
		{ID: "old", Amount: decimal.RequireFromString("-500"), TransactionAt: daysAgo(45),
			Category: domain.StringPtr("shopping"), MatchedRewardID: domain.StringPtr("r4"),
			RewardApplied: true, RewardSavingsAmount: dec("25.00")},
		{ID: "salary", Amount: decimal.RequireFromString("3000"), TransactionAt: daysAgo(5)},
	}
}

func TestBuildDashboard(t *testing.T) {
	d := BuildDashboard(sampleTransactions(), now, DefaultWindow)

	assert.Equal(t, 6, d.TotalTransactions)
	assert.Equal(t, "2280.00", d.TotalBalance.StringFixed(2))
	assert.Equal(t, "12.00", d.SavedViaAutoApply.StringFixed(2))
	assert.Equal(t, "6.00", d.SavedViaNotifications.StringFixed(2))
	assert.Equal(t, "18.00", d.TotalSavings().StringFixed(2))

	require.Len(t, d.RewardsByCategory, 3)
	assert.Equal(t, "travel", d.RewardsByCategory[0].Category)
	assert.Equal(t, OtherCategory, d.RewardsByCategory[1].Category)
	assert.Equal(t, "dining", d.RewardsByCategory[2].Category)
	assert.Equal(t, 1, d.RewardsByCategory[2].Count)

	require.Len(t, d.RecentRewardsApplied, 3)
	assert.Equal(t, "auto-1", d.RecentRewardsApplied[0].ID)
	require.Len(t, d.RecentRewardsMissed, 1)
	assert.Equal(t, "missed", d.RecentRewardsMissed[0].ID)
}

func TestBuildDashboard_Empty(t *testing.T) {
	d := BuildDashboard(nil, now, 0)
	assert.Zero(t, d.TotalTransactions)
	assert.True(t, d.TotalBalance.IsZero())
	assert.NotNil(t, d.RewardsByCategory)
	assert.NotNil(t, d.RecentRewardsApplied)
	assert.NotNil(t, d.RecentRewardsMissed)
}

func TestBuildDashboard_CapsRecentLists(t *testing.T) {
	var txs []*domain.Transaction
	for i := 0; i < 15; i++ {
		txs = append(txs, &domain.Transaction{
			ID:            string(rune('a' + i)),
			Amount:        decimal.NewFromInt(-1),
			TransactionAt: daysAgo(i),
			RewardApplied: true,
		})
	}
	d := BuildDashboard(txs, now, DefaultWindow)
	require.Len(t, d.RecentRewardsApplied, 10)
	assert.Equal(t, "a", d.RecentRewardsApplied[0].ID)
}

func TestInWindow(t *testing.T) {
	assert.True(t, InWindow(daysAgo(29), now, DefaultWindow))
	assert.False(t, InWindow(daysAgo(31), now, DefaultWindow))
	assert.True(t, InWindow(now.Add(-time.Hour), now, DefaultWindow))
	assert.False(t, InWindow(time.Time{}, now, DefaultWindow))
}

func TestSpendByCategory(t *testing.T) {
	top := SpendByCategory(sampleTransactions(), 2)
	require.Len(t, top, 2)
	assert.Equal(t, "shopping", top[0].Category)
	assert.Equal(t, "travel", top[1].Category)
	assert.Equal(t, "720.00", TotalSpent(sampleTransactions()).StringFixed(2))
}

func reward(id, merchant, category string, typ domain.RewardType) domain.Reward {
	return domain.Reward{
		ID:               id,
		MerchantName:     merchant,
		Category:         category,
		Type:             typ,
		GeoScope:         domain.GeoScopeGlobal,
		IsAutoApplicable: typ != domain.RewardTypeExperience,
	}
}

func TestRecommend(t *testing.T) {
	wine := reward("wine", "Wine Tasting", "entertainment", domain.RewardTypeExperience)
	wine.GeoScope, wine.GeoCity, wine.FixedAmountValue = domain.GeoScopeCity, "San Francisco", dec("150")
	bway := reward("bway", "Broadway", "entertainment", domain.RewardTypeExperience)
	bway.GeoScope, bway.GeoCity, bway.FixedAmountValue = domain.GeoScopeCity, "New York", dec("200")
	gala := reward("gala", "Gala", "entertainment", domain.RewardTypeExperience)
	gala.FixedAmountValue = dec("300")
	optIn := reward("optin", "Starbucks", "dining", domain.RewardTypePercentageCashback)
	optIn.RequiresUserOptIn = true

	available := []domain.Reward{
		reward("sbux", "Starbucks", "dining", domain.RewardTypePercentageCashback),
		reward("uber-by-merchant", "Uber", "rides", domain.RewardTypePercentageCashback),
		reward("amzn", "Amazon", "shopping", domain.RewardTypePercentageCashback),
		optIn, wine, bway, gala,
	}

	rec := Recommend("san francisco", sampleTransactions()[:4], available)

	var autoIDs, pricelessIDs []string
	for _, r := range rec.AutoApply {
		autoIDs = append(autoIDs, r.ID)
	}
	for _, r := range rec.Priceless {
		pricelessIDs = append(pricelessIDs, r.ID)
	}
	assert.Equal(t, []string{"sbux", "uber-by-merchant"}, autoIDs)
	assert.Equal(t, []string{"gala", "wine"}, pricelessIDs)
}

func TestRecommend_NoGeo(t *testing.T) {
	wine := reward("wine", "Wine Tasting", "entertainment", domain.RewardTypeExperience)
	wine.GeoScope, wine.GeoCity = domain.GeoScopeCity, "San Francisco"

	rec := Recommend("", nil, []domain.Reward{wine})
	assert.Empty(t, rec.Priceless)
	assert.Empty(t, rec.AutoApply)
}

func TestFallback(t *testing.T) {
	txs := sampleTransactions()
	dash := BuildDashboard(txs, now, DefaultWindow)
	in := NewInput(domain.User{Name: "Sarah"}, txs, dash, DefaultWindow)

	cause := errors.New("quota")
	s := Fallback(in, cause)
	assert.Equal(t, KindFallback, s.Kind)
	assert.Equal(t, "This month, you've saved $18.00 through Effortless rewards. Most of your savings came from shopping.", s.Text)
	assert.Equal(t, []string{
		"Your top spending category is shopping",
		"You've saved $12.00 through automatic rewards",
		"Consider enabling more auto-apply rewards to maximize savings",
	}, s.Insights)
	assert.ErrorIs(t, s.Cause, cause)

	empty := Fallback(Input{}, ErrNoModel)
	assert.Contains(t, empty.Text, "various categories")
	assert.Equal(t, "Your top spending category is dining", empty.Insights[0])
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", money(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "$0.00", money(decimal.Zero))
}

// mockModels implements contentGenerator.
type mockModels struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateContentFunc(ctx, model, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}}},
	}
}

func TestGeminiSummarizer_Generated(t *testing.T) {
	var gotModel, gotPrompt string
	models := &mockModels{GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotModel = model
		gotPrompt = contents[0].Parts[0].Text
		assert.Equal(t, "application/json", config.ResponseMIMEType)
		return textResponse("```json\n{\"summary_text\": \"Nice work.\", \"top_insights\": [\"a\", \"b\"]}\n```"), nil
	}}
	s := newGeminiSummarizer(models, "")

	dash := BuildDashboard(sampleTransactions(), now, DefaultWindow)
	in := NewInput(domain.User{Name: "Sarah", PrimaryGeoLocation: "San Francisco, CA"}, sampleTransactions(), dash, DefaultWindow)
	out := s.Summarize(context.Background(), in)

	require.Equal(t, KindGenerated, out.Kind)
	assert.Equal(t, "Nice work.", out.Text)
	assert.Equal(t, []string{"a", "b"}, out.Insights)
	assert.NoError(t, out.Cause)
	assert.Equal(t, DefaultModelName, gotModel)
	assert.Contains(t, gotPrompt, "User: Sarah")
	assert.Contains(t, gotPrompt, "Time Period: Last 30 days")
	assert.Contains(t, gotPrompt, "Total Savings: $18.00")
}

func TestGeminiSummarizer_FallsBack(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
	}{
		{"api error", nil, errors.New("quota exceeded")},
		{"nil response", nil, nil},
		{"not json", textResponse("sorry, I can't"), nil},
		{"no summary", textResponse(`{"top_insights": []}`), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &mockModels{GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return tt.resp, tt.err
			}}
			out := newGeminiSummarizer(models, "test-model").Summarize(context.Background(), Input{})
			assert.Equal(t, KindFallback, out.Kind)
			assert.Error(t, out.Cause)
			assert.Len(t, out.Insights, 3)
		})
	}
}

func TestStaticSummarizer(t *testing.T) {
	out := StaticSummarizer{}.Summarize(context.Background(), Input{})
	assert.Equal(t, KindFallback, out.Kind)
	assert.ErrorIs(t, out.Cause, ErrNoModel)
}
