// Package router builds the Chi mux the query pipeline is served over.
// Route set and middleware layering are carried over from the teacher's
// router, shrunk from its ~20-route SaaS surface down to the handful of
// endpoints the spec names.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragcore/retrieval-engine/internal/handler"
	"github.com/ragcore/retrieval-engine/internal/middleware"
)

// Dependencies holds everything the router needs to wire routes.
type Dependencies struct {
	DB         handler.DBPinger
	Coordinator handler.QueryCoordinator
	ModelUsed  string
	Version    string
	FrontendURL string

	Metrics    *middleware.Metrics
	MetricsReg *prometheus.Registry

	APIKey            string
	QueryRateLimiter  *middleware.RateLimiter
}

// New builds the Chi router: public health/metrics, and an API-key
// protected, rate-limited query endpoint.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/api/health", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(deps.APIKey))
		if deps.QueryRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.QueryRateLimiter))
		}
		r.With(middleware.Timeout(30 * time.Second)).
			Post("/v1/query", handler.Query(deps.Coordinator, deps.ModelUsed))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
