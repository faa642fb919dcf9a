package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"google.golang.org/genai"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/logger"
)

// DefaultModelName is the Gemini model used for summaries.
const DefaultModelName = "gemini-2.5-flash"

// Kind tells a generated summary apart from the deterministic fallback.
type Kind string

const (
	KindGenerated Kind = "generated"
	KindFallback  Kind = "fallback"
)

// ErrNoModel is the fallback cause when no text model is configured.
var ErrNoModel = errors.New("no text model configured")

// Summary is the natural-language part of the insights response. Cause is
// set for fallback summaries only.
type Summary struct {
	Kind     Kind     `json:"source"`
	Text     string   `json:"summary_text"`
	Insights []string `json:"top_insights"`
	Cause    error    `json:"-"`
}

// Input is everything a summary is written from.
type Input struct {
	UserName   string
	Location   string
	Window     time.Duration
	Dashboard  *Dashboard
	Recent     []*domain.Transaction
	TopSpend   []CategorySpend
	TotalSpent decimal.Decimal
}

// NewInput derives the spending figures of an Input from the user's recent
// transactions.
func NewInput(user domain.User, recent []*domain.Transaction, dash *Dashboard, window time.Duration) Input {
	return Input{
		UserName:   user.Name,
		Location:   user.PrimaryGeoLocation,
		Window:     window,
		Dashboard:  dash,
		Recent:     recent,
		TopSpend:   SpendByCategory(recent, 3),
		TotalSpent: TotalSpent(recent),
	}
}

// Summarizer writes the dashboard summary. It never fails: when no text can
// be generated it returns a fallback summary carrying the cause.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) Summary
}

// Fallback builds the deterministic summary from the dashboard numbers.
func Fallback(in Input, cause error) Summary {
	var auto, total decimal.Decimal
	if in.Dashboard != nil {
		auto = in.Dashboard.SavedViaAutoApply
		total = in.Dashboard.TotalSavings()
	}

	source, topCategory := "various categories", "dining"
	if len(in.TopSpend) > 0 {
		source, topCategory = in.TopSpend[0].Category, in.TopSpend[0].Category
	}

	return Summary{
		Kind: KindFallback,
		Text: fmt.Sprintf("This month, you've saved %s through Effortless rewards. Most of your savings came from %s.",
			money(total), source),
		Insights: []string{
			"Your top spending category is " + topCategory,
			fmt.Sprintf("You've saved %s through automatic rewards", money(auto)),
			"Consider enabling more auto-apply rewards to maximize savings",
		},
		Cause: cause,
	}
}

// StaticSummarizer always returns the fallback summary.
type StaticSummarizer struct{}

func (StaticSummarizer) Summarize(ctx context.Context, in Input) Summary {
	return Fallback(in, ErrNoModel)
}

// contentGenerator is the part of the genai client the summarizer needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSummarizer asks a Gemini model for the summary as JSON.
type GeminiSummarizer struct {
	models contentGenerator
	model  string
}

var _ Summarizer = (*GeminiSummarizer)(nil)

// NewGeminiSummarizer creates a Gemini client. An empty apiKey leaves the
// client to pick up credentials from the environment.
func NewGeminiSummarizer(ctx context.Context, apiKey, model string) (*GeminiSummarizer, error) {
	cfg := &genai.ClientConfig{}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiSummarizer: create genai client: %w", err)
	}
	return newGeminiSummarizer(client.Models, model), nil
}

func newGeminiSummarizer(models contentGenerator, model string) *GeminiSummarizer {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiSummarizer{models: models, model: model}
}

type modelSummary struct {
	SummaryText string   `json:"summary_text"`
	TopInsights []string `json:"top_insights"`
}

// Summarize implements Summarizer.
func (s *GeminiSummarizer) Summarize(ctx context.Context, in Input) Summary {
	summary, err := s.generate(ctx, in)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("model", s.model).Msg("Falling back to static summary")
		return Fallback(in, err)
	}
	return summary
}

func (s *GeminiSummarizer) generate(ctx context.Context, in Input) (Summary, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildSummaryPrompt(in)}},
		},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: "You are a helpful financial assistant. Always return valid JSON."}},
		},
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.7),
	}

	resp, err := s.models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return Summary{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return Summary{}, fmt.Errorf("empty response from model")
	}

	raw := cleanModelJSON(resp.Text())
	if raw == "" {
		return Summary{}, fmt.Errorf("empty response from model")
	}

	var out modelSummary
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Summary{}, fmt.Errorf("unmarshal JSON: %w", err)
	}
	if strings.TrimSpace(out.SummaryText) == "" {
		return Summary{}, fmt.Errorf("model returned no summary_text")
	}
	if out.TopInsights == nil {
		out.TopInsights = []string{}
	}
	return Summary{Kind: KindGenerated, Text: out.SummaryText, Insights: out.TopInsights}, nil
}

func buildSummaryPrompt(in Input) string {
	dash := in.Dashboard
	if dash == nil {
		dash = &Dashboard{}
	}
	location := in.Location
	if location == "" {
		location = "Not specified"
	}
	days := int(in.Window.Hours() / 24)
	if days <= 0 {
		days = int(DefaultWindow.Hours() / 24)
	}

	top := make([]string, 0, len(in.TopSpend))
	for _, c := range in.TopSpend {
		top = append(top, fmt.Sprintf("%s (%s)", c.Category, money(c.Amount)))
	}

	var byCategory strings.Builder
	for _, c := range dash.RewardsByCategory {
		fmt.Fprintf(&byCategory, "- %s: %s (%d transactions)\n", c.Category, money(c.TotalSavings), c.Count)
	}

	var b strings.Builder
	b.WriteString("You are a financial insights assistant for Effortless, a smart rewards platform.\n\n")
	fmt.Fprintf(&b, "User: %s\nLocation: %s\nTime Period: Last %d days\n\n", in.UserName, location, days)
	b.WriteString("Spending Summary:\n")
	fmt.Fprintf(&b, "- Total Spent: %s\n- Top Categories: %s\n\n", money(in.TotalSpent), strings.Join(top, ", "))
	b.WriteString("Savings Summary:\n")
	fmt.Fprintf(&b, "- Saved via Auto-Apply: %s\n", money(dash.SavedViaAutoApply))
	fmt.Fprintf(&b, "- Saved via Priceless Notifications: %s\n", money(dash.SavedViaNotifications))
	fmt.Fprintf(&b, "- Total Savings: %s\n\n", money(dash.TotalSavings()))
	fmt.Fprintf(&b, "Rewards Applied: %d transactions\nRewards Missed: %d transactions\n\n",
		len(dash.RecentRewardsApplied), len(dash.RecentRewardsMissed))
	b.WriteString("Rewards by Category:\n")
	b.WriteString(byCategory.String())
	b.WriteString("\nWrite a friendly, concise summary (2-3 sentences) and 2-3 key insights about the user's\n" +
		"spending patterns and savings opportunities. Be specific and actionable.\n\n" +
		"Return ONLY a JSON object with this exact structure:\n" +
		"{\"summary_text\": \"...\", \"top_insights\": [\"...\", \"...\"]}\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// money formats d as US dollars with thousands separators.
func money(d decimal.Decimal) string {
	return message.NewPrinter(language.English).Sprintf("$%.2f", d.Round(2).InexactFloat64())
}
