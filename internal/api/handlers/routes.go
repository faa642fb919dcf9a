package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/effortless/internal/api/middleware"
)

// Router groups the handlers served by the API.
type Router struct {
	Rewards *RewardsHandler
	Users   *UsersHandler
	Jobs    *JobsHandler

	// DataSource is reported by the health check, e.g. "bigquery" or "csv".
	DataSource string
}

// Handler registers every endpoint on a new ServeMux.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "healthy",
			"data_source": rt.DataSource,
			"time":        time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("GET /api/rewards", rt.Rewards.ListRewards)

	mux.HandleFunc("GET /api/users/{id}", rt.Users.GetUser)
	mux.HandleFunc("GET /api/users/{id}/preferences", rt.Users.GetPreferences)
	mux.HandleFunc("PUT /api/users/{id}/preferences", rt.Users.UpdatePreferences)
	mux.HandleFunc("GET /api/users/{id}/transactions", rt.Users.ListTransactions)
	mux.HandleFunc("POST /api/users/{id}/transactions/{txID}/confirm", rt.Users.ConfirmReward)
	mux.HandleFunc("GET /api/users/{id}/dashboard-summary", rt.Users.DashboardSummary)
	mux.HandleFunc("GET /api/users/{id}/ai-insights", rt.Users.AIInsights)

	mux.HandleFunc("POST /api/users/{id}/enrich", rt.Jobs.EnqueueEnrichment)
	mux.HandleFunc("GET /api/jobs", rt.Jobs.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", rt.Jobs.GetJob)

	return mux
}
