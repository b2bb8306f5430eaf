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

	custom_errors "github-integration/internal/errors"
	"github-integration/internal/integration"
	"github-integration/internal/model"
	"github-integration/internal/query"
)

const requestTimeout = 60 * time.Second

// Integrations manages identity records.
type Integrations interface {
	Status(ctx context.Context, userID int64) (*integration.Status, error)
	Connect(ctx context.Context, token string, profile model.Profile) (*model.Integration, error)
	Remove(ctx context.Context, userID int64) error
}

// Resyncer replaces the mirrored data of one identity.
type Resyncer interface {
	Resync(ctx context.Context, userID int64) (model.SyncStats, error)
}

// Queries serves reads over the mirrored collections.
type Queries interface {
	GetPage(ctx context.Context, req query.PageRequest) (*query.PageResult, error)
	GlobalSearch(ctx context.Context, keyword string) (*query.SearchResult, error)
}

// OAuth runs the authorization code flow.
type OAuth interface {
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// ProfileFetcher loads the GitHub profile behind an access token.
type ProfileFetcher func(ctx context.Context, token string) (model.Profile, error)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Integrations Integrations
	Syncer       Resyncer
	Queries      Queries
	OAuth        OAuth
	FetchProfile ProfileFetcher
	Version      string
}

// Handler is the container for API dependencies.
type Handler struct {
	Deps
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(deps Deps, logger *slog.Logger) http.Handler {
	h := &Handler{
		Deps:   deps,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/", h.root)
		r.Get("/health", h.healthCheck)

		r.Route("/auth/github", func(r chi.Router) {
			r.Get("/login", h.login)
			r.Get("/callback", h.callback)
		})

		r.Get("/integration/status", h.integrationStatus)
		r.Post("/integration/remove", h.removeIntegration)

		r.Get("/data/{collection}", h.getCollectionData)
		r.Get("/search", h.globalSearch)
	})

	// A resync runs for as long as the account takes to mirror.
	r.Post("/integration/resync", h.resync)

	return r
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "GitHub Integration API",
		"version": h.Version,
	})
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// getCollectionData returns one page of a mirrored collection.
// GET /data/{collection}?page=&limit=&sort_by=&sort_order=&filter=&search=&user_id=
func (h *Handler) getCollectionData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.PageRequest{
		Collection: chi.URLParam(r, "collection"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
		Filter:     q.Get("filter"),
		Search:     q.Get("search"),
	}

	var err error
	if req.Page, err = optionalInt(q.Get("page")); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'page' parameter. Must be an integer.")
		return
	}
	if req.Limit, err = optionalInt(q.Get("limit")); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer.")
		return
	}
	if raw := q.Get("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'user_id' parameter. Must be an integer.")
			return
		}
		req.UserID = &userID
	}

	res, err := h.Queries.GetPage(r.Context(), req)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// globalSearch searches every mirrored collection.
// GET /search?q=
func (h *Handler) globalSearch(w http.ResponseWriter, r *http.Request) {
	res, err := h.Queries.GlobalSearch(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// respondWithDomainError maps service errors onto HTTP statuses.
func (h *Handler) respondWithDomainError(w http.ResponseWriter, err error) {
	var syncErr *custom_errors.SyncFailedError
	switch {
	case custom_errors.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, custom_errors.ErrIntegrationNotFound):
		respondWithError(w, http.StatusNotFound, "Integration not found")
	case errors.Is(err, custom_errors.ErrNoAccessToken):
		respondWithError(w, http.StatusBadRequest, "No access token found")
	case errors.Is(err, custom_errors.ErrSyncInProgress):
		respondWithError(w, http.StatusConflict, "A resync is already running for this integration")
	case errors.As(err, &syncErr):
		respondWithError(w, http.StatusInternalServerError, "Sync failed: "+syncErr.Error())
	default:
		h.logger.Error("Request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
