// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"repo-trend-tracker/internal/database"
	custom_errors "repo-trend-tracker/internal/errors"
	"repo-trend-tracker/internal/model"
)

const (
	defaultCandidateLimit = 3
	maxCandidateLimit     = 100
)

// Ingester ingests and looks up single repositories.
type Ingester interface {
	Ingest(ctx context.Context, fullName string) (*model.Repository, error)
	Get(ctx context.Context, fullName string) (*model.Repository, error)
}

// CrawlTrigger starts a background crawl.
type CrawlTrigger interface {
	Trigger(ctx context.Context) (uuid.UUID, error)
}

// CandidateSource hands out promoted repositories.
type CandidateSource interface {
	TakeOldestUndispatched(ctx context.Context, limit int) ([]model.Repository, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	ingester   Ingester
	crawler    CrawlTrigger
	candidates CandidateSource
	logger     *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(ingester Ingester, crawler CrawlTrigger, candidates CandidateSource, logger *slog.Logger) http.Handler {
	h := &Handler{
		ingester:   ingester,
		crawler:    crawler,
		candidates: candidates,
		logger:     logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", h.ingest)
		r.Get("/repos/{owner}/{name}", h.getRepository)
		r.Post("/crawl", h.triggerCrawl)
		r.Get("/candidates", h.takeCandidates)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingest refreshes a single repository on demand.
// POST /v1/ingest?full_name=owner/name
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	fullName := r.URL.Query().Get("full_name")

	rec, err := h.ingester.Ingest(r.Context(), fullName)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, rec)
	case custom_errors.IsInvalidRepoFormat(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case custom_errors.IsUpstreamUnavailable(err):
		h.logger.Warn("Upstream unavailable during ingest", "repo", fullName, "error", err)
		respondWithError(w, http.StatusBadGateway, "Upstream platform unavailable")
	default:
		h.logger.Error("Failed to ingest repository", "repo", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// getRepository returns the stored trend record.
// GET /v1/repos/{owner}/{name}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	rec, err := h.ingester.Get(r.Context(), fullName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		h.logger.Error("Failed to get repository", "repo", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

// triggerCrawl starts a full crawl in the background.
// POST /v1/crawl
func (h *Handler) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	runID, err := h.crawler.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, custom_errors.ErrCrawlInProgress) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Failed to trigger crawl", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{"run_id": runID.String()})
}

// takeCandidates dispatches the oldest promoted repositories.
// GET /v1/candidates?limit=N
func (h *Handler) takeCandidates(w http.ResponseWriter, r *http.Request) {
	limit := defaultCandidateLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer.")
			return
		}
		limit = min(max(n, 1), maxCandidateLimit)
	}

	repos, err := h.candidates.TakeOldestUndispatched(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to dispatch candidates", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, repos)
}
