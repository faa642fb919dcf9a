package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/effortless/internal/api/middleware"
	"github.com/dvloznov/effortless/internal/catalog"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/insights"
	"github.com/dvloznov/effortless/internal/jobs"
	"github.com/dvloznov/effortless/internal/matching"
	"github.com/dvloznov/effortless/internal/prefs"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	maxRecommendationInput  = 50
)

// SnapshotSource yields the current reward catalog.
type SnapshotSource interface {
	Current() *catalog.Snapshot
}

// UserService resolves users and their preferences.
type UserService interface {
	User(ctx context.Context, userID string) (domain.User, error)
	Preferences(ctx context.Context, userID string) (domain.Preferences, error)
	Resolve(ctx context.Context, userID string) (domain.UserContext, error)
	Update(ctx context.Context, userID string, patch prefs.Patch) (domain.Preferences, error)
}

// TransactionStore reads a user's transactions and persists derived fields.
type TransactionStore interface {
	QueryTransactionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Transaction, error)
	UpdateTransactionEnrichment(ctx context.Context, tx *domain.Transaction) error
}

var _ UserService = (*prefs.Resolver)(nil)

// writeLookupError maps a repository error to a response. Not-found errors
// become a 404 with notFound as the message.
func writeLookupError(w http.ResponseWriter, log zerolog.Logger, err error, notFound, failure string) {
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, notFound)
		return
	}
	log.Error().Err(err).Msg(failure)
	middleware.WriteError(w, http.StatusInternalServerError, failure)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string, def bool) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// RewardsHandler handles reward catalog endpoints.
type RewardsHandler struct {
	catalog SnapshotSource
	now     func() time.Time
	log     zerolog.Logger
}

// NewRewardsHandler creates a new rewards handler.
func NewRewardsHandler(cat SnapshotSource, now func() time.Time, log zerolog.Logger) *RewardsHandler {
	if now == nil {
		now = time.Now
	}
	return &RewardsHandler{catalog: cat, now: now, log: log}
}

// ListRewards handles GET /api/rewards?category=&active_only=
func (h *RewardsHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	activeOnly, ok := queryBool(r, "active_only", true)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid active_only")
		return
	}
	category := r.URL.Query().Get("category")

	snap := h.catalog.Current()
	rewards := []domain.Reward{}
	if activeOnly {
		rewards = append(rewards, snap.ActiveNow(h.now(), category)...)
	} else {
		for _, rw := range snap.Rewards() {
			if category == "" || rw.Category == category {
				rewards = append(rewards, rw)
			}
		}
	}

	middleware.WriteJSON(w, http.StatusOK, rewards)
}

// UsersHandler handles user, preference, transaction and insight endpoints.
type UsersHandler struct {
	users        UserService
	transactions TransactionStore
	catalog      SnapshotSource
	summarizer   insights.Summarizer
	window       time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// UsersHandlerConfig holds the collaborators of a UsersHandler.
type UsersHandlerConfig struct {
	Users        UserService
	Transactions TransactionStore
	Catalog      SnapshotSource
	Summarizer   insights.Summarizer
	Window       time.Duration
	Now          func() time.Time
}

// NewUsersHandler creates a new users handler. A nil Summarizer always
// serves the fallback summary.
func NewUsersHandler(cfg UsersHandlerConfig, log zerolog.Logger) *UsersHandler {
	h := &UsersHandler{
		users:        cfg.Users,
		transactions: cfg.Transactions,
		catalog:      cfg.Catalog,
		summarizer:   cfg.Summarizer,
		window:       cfg.Window,
		now:          cfg.Now,
		log:          log,
	}
	if h.summarizer == nil {
		h.summarizer = insights.StaticSummarizer{}
	}
	if h.window <= 0 {
		h.window = insights.DefaultWindow
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// GetUser handles GET /api/users/{id}
func (h *UsersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.User(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, h.log, err, "User not found", "Failed to get user")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

// GetPreferences handles GET /api/users/{id}/preferences
func (h *UsersHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.users.Preferences(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, h.log, err, "User not found", "Failed to get preferences")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// UpdatePreferences handles PUT /api/users/{id}/preferences. Only the fields
// present in the body are changed.
func (h *UsersHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch prefs.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID := r.PathValue("id")
	p, err := h.users.Update(r.Context(), userID, patch)
	if err != nil {
		writeLookupError(w, h.log, err, "User not found", "Failed to update preferences")
		return
	}

	h.log.Info().Str("user_id", userID).Msg("Preferences updated")
	middleware.WriteJSON(w, http.StatusOK, p)
}

// userTransactions checks the user exists and returns all of their
// transactions, newest first. It writes the error response itself.
func (h *UsersHandler) userTransactions(w http.ResponseWriter, r *http.Request) (domain.User, []*domain.Transaction, bool) {
	ctx := r.Context()
	userID := r.PathValue("id")

	user, err := h.users.User(ctx, userID)
	if err != nil {
		writeLookupError(w, h.log, err, "User not found", "Failed to get user")
		return domain.User{}, nil, false
	}

	txs, err := h.transactions.QueryTransactionsByUser(ctx, userID, time.Time{})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return domain.User{}, nil, false
	}
	return user, txs, true
}

// ListTransactions handles GET /api/users/{id}/transactions?limit=&offset=
func (h *UsersHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultTransactionLimit)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	_, txs, ok := h.userTransactions(w, r)
	if !ok {
		return
	}

	page := []*domain.Transaction{}
	if offset < len(txs) {
		end := min(offset+limit, len(txs))
		page = txs[offset:end]
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// DashboardSummary handles GET /api/users/{id}/dashboard-summary
func (h *UsersHandler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	_, txs, ok := h.userTransactions(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, insights.BuildDashboard(txs, h.now(), h.window))
}

// InsightsResponse is the body of the AI insights endpoint.
type InsightsResponse struct {
	insights.Summary
	insights.Recommendations
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// AIInsights handles GET /api/users/{id}/ai-insights
func (h *UsersHandler) AIInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, txs, ok := h.userTransactions(w, r)
	if !ok {
		return
	}

	uc, err := h.users.Resolve(ctx, user.ID)
	if err != nil {
		writeLookupError(w, h.log, err, "User not found", "Failed to resolve user")
		return
	}

	now := h.now()
	var recent []*domain.Transaction
	for _, tx := range txs {
		if insights.InWindow(tx.TransactionAt, now, h.window) {
			recent = append(recent, tx)
		}
	}

	dash := insights.BuildDashboard(txs, now, h.window)
	summary := h.summarizer.Summarize(ctx, insights.NewInput(user, recent, dash, h.window))

	available := h.catalog.Current().ActiveNow(now, "")
	if len(recent) > maxRecommendationInput {
		recent = recent[:maxRecommendationInput]
	}

	resp := InsightsResponse{
		Summary:         summary,
		Recommendations: insights.Recommend(uc.Geo, recent, available),
	}
	if summary.Cause != nil {
		resp.FallbackReason = summary.Cause.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ConfirmReward handles POST /api/users/{id}/transactions/{txID}/confirm.
// It records that the user accepted a notified reward. The reward must be
// one of the transaction's candidates: active when the transaction happened,
// relevant to its merchant or category, and valid in the user's geo.
func (h *UsersHandler) ConfirmReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RewardID string `json:"reward_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RewardID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "reward_id is required")
		return
	}

	_, txs, ok := h.userTransactions(w, r)
	if !ok {
		return
	}

	txID := r.PathValue("txID")
	var tx *domain.Transaction
	for _, t := range txs {
		if t.ID == txID {
			tx = t
			break
		}
	}
	if tx == nil {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	snap := h.catalog.Current()
	reward, found := snap.Get(req.RewardID)
	if !found {
		middleware.WriteError(w, http.StatusNotFound, "Reward not found")
		return
	}

	uc, err := h.users.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, h.log, err, "User not found", "Failed to resolve user")
		return
	}
	if !isCandidate(snap.ActiveCandidates(tx, uc.Geo), reward.ID) {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Reward does not apply to this transaction")
		return
	}

	if err := matching.Confirm(tx, &reward); err != nil {
		if errors.Is(err, matching.ErrAlreadyDecided) {
			middleware.WriteError(w, http.StatusConflict, "Transaction already has a reward decision")
			return
		}
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.transactions.UpdateTransactionEnrichment(r.Context(), tx); err != nil {
		h.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to save confirmed reward")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

func isCandidate(candidates []domain.Reward, rewardID string) bool {
	for _, c := range candidates {
		if c.ID == rewardID {
			return true
		}
	}
	return false
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
	users     UserService
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher, users UserService, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store:     store,
		publisher: publisher,
		users:     users,
		log:       log,
	}
}

// EnqueueEnrichment handles POST /api/users/{id}/enrich. The optional body
// {"since": "2024-01-01T00:00:00Z"} limits the run.
func (h *JobsHandler) EnqueueEnrichment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	var req struct {
		Since time.Time `json:"since"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if _, err := h.users.User(ctx, userID); err != nil {
		writeLookupError(w, h.log, err, "User not found", "Failed to get user")
		return
	}

	job := &jobs.EnrichBatchJob{UserID: userID, Source: "api", Since: req.Since}
	if err := h.publisher.PublishEnrichBatch(ctx, job); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue enrichment job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue enrichment job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", userID).Msg("Enrichment job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"user_id": userID,
		"status":  string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeLookupError(w, h.log, err, "Job not found", "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs?user_id=&status=&limit=&offset=
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	var ok bool
	if filter.Limit, ok = queryInt(r, "limit", 0); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	if filter.Offset, ok = queryInt(r, "offset", 0); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
