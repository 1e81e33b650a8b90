package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/internal/db"
	"github.com/pandeptwidyaop/hookrelay/internal/server/config"
	"github.com/pandeptwidyaop/hookrelay/internal/server/events"
	"github.com/pandeptwidyaop/hookrelay/internal/server/hooks"
	"github.com/pandeptwidyaop/hookrelay/internal/server/ingest"
	"github.com/pandeptwidyaop/hookrelay/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// Operation names reported to the credential authority.
const (
	OpHooksCreate = "hooks.create"
	OpHooksList   = "hooks.list"
	OpHooksGet    = "hooks.get"
	OpHooksDelete = "hooks.delete"
	OpEventsPoll  = "events.poll"
)

// Handler serves the control plane and the public ingestion endpoint.
type Handler struct {
	db       *gorm.DB
	registry *hooks.Registry
	events   *events.Store
	pipeline *ingest.Pipeline
	config   *config.Config
	authMW   *middleware.AuthMiddleware
	limiter  *middleware.RateLimiter
}

// NewHandler creates a new API handler. limiter may be nil to disable rate limiting.
func NewHandler(
	database *gorm.DB,
	registry *hooks.Registry,
	store *events.Store,
	pipeline *ingest.Pipeline,
	verifier middleware.Verifier,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *Handler {
	return &Handler{
		db:       database,
		registry: registry,
		events:   store,
		pipeline: pipeline,
		config:   cfg,
		authMW:   middleware.NewAuthMiddleware(verifier),
		limiter:  limiter,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /version", h.getVersion)

	// Ingestion accepts every method
	mux.HandleFunc("/webhook/{id}", h.receiveWebhook)

	// Control plane (bearer token required)
	mux.Handle("POST /hooks", h.control(OpHooksCreate, h.createHook))
	mux.Handle("GET /hooks", h.control(OpHooksList, h.listHooks))
	mux.Handle("GET /hooks/{id}", h.control(OpHooksGet, h.getHook))
	mux.Handle("DELETE /hooks/{id}", h.control(OpHooksDelete, h.deleteHook))
	mux.Handle("GET /hooks/{id}/events", h.control(OpEventsPoll, h.pollEvents))

	// CORS preflight
	preflight := middleware.CORS(h.config.Server.AllowedOrigins)(http.HandlerFunc(noContent))
	mux.Handle("OPTIONS /hooks", preflight)
	mux.Handle("OPTIONS /hooks/", preflight)
}

// Router returns the full HTTP handler with the shared middleware chain applied.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var handler http.Handler = middleware.SecurityHeaders(mux)
	handler = middleware.HTTPLoggerWithLevel(handler, h.config.Logging.HTTPLevel)
	return middleware.RequestID(handler)
}

// control wraps a control-plane handler with CORS, rate limiting and authentication.
func (h *Handler) control(operation string, fn http.HandlerFunc) http.Handler {
	handler := h.authMW.ProtectFunc(operation, fn)
	if h.limiter != nil {
		handler = h.limiter.Limit(handler)
	}
	return middleware.CORS(h.config.Server.AllowedOrigins)(handler)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps registry and store errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, pkgerrors.ErrForbidden):
		respondError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, pkgerrors.ErrHookNotFound):
		respondError(w, http.StatusNotFound, "Hook not found")
	case pkgerrors.IsStorage(err):
		logger.ErrorEvent().Err(err).Str("kind", pkgerrors.CodeStorage).Msg(message)
		respondError(w, http.StatusInternalServerError, message)
	default:
		logger.ErrorEvent().Err(err).Msg(message)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func noContent(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := db.Ping(r.Context(), h.db); err != nil {
		logger.WarnEvent().Err(err).Msg("Health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"service": "hookrelay",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "hookrelay",
	})
}
