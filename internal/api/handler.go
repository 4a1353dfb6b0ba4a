// internal/api/handler.go
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"commit-tracker/internal/model"
)

// StatusSource is the read side of the ledger the API reports on.
type StatusSource interface {
	Count(ctx context.Context) (int64, error)
	LastAnnounced(ctx context.Context) (*model.LedgerEntry, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	ledger StatusSource
	logger *slog.Logger
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Entries       int64              `json:"entries"`
	LastAnnounced *model.LedgerEntry `json:"last_announced"`
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(ledger StatusSource, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	h := &Handler{
		ledger: ledger,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.getStatus)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStatus reports the ledger size and the last announced commit.
// GET /v1/status
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	count, err := h.ledger.Count(r.Context())
	if err != nil {
		h.logger.Error("Failed to count ledger entries", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	last, err := h.ledger.LastAnnounced(r.Context())
	if err != nil {
		h.logger.Error("Failed to read last announced commit", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, StatusResponse{Entries: count, LastAnnounced: last})
}
