// Package api provides HTTP handlers for the agrotel API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
	"github.com/artpar/agrotel/internal/core/monitoring"
	"github.com/artpar/agrotel/internal/shell/api/openapi"
	"github.com/artpar/agrotel/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Refresher runs one telemetry poll cycle on demand.
type Refresher interface {
	RefreshNow(ctx context.Context) (*domain.Snapshot, error)
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store          store.Store
	refresher      Refresher
	logger         *slog.Logger
	allowedOrigins []string
	pollInterval   time.Duration
	refreshTimeout time.Duration
	docs           *openapi.Generator
	now            func() time.Time
}

// Config holds the handler dependencies.
type Config struct {
	Store          store.Store
	Refresher      Refresher
	Logger         *slog.Logger
	AllowedOrigins []string
	Version        string

	// PollInterval is used to rate telemetry freshness on /ready.
	PollInterval time.Duration

	// RefreshTimeout bounds POST /api/v1/telemetry/refresh. It must stay
	// below the HTTP server's write timeout. Zero leaves it unbounded.
	RefreshTimeout time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	h := &Handler{
		store:          cfg.Store,
		refresher:      cfg.Refresher,
		logger:         cfg.Logger.With("component", "api"),
		allowedOrigins: cfg.AllowedOrigins,
		pollInterval:   cfg.PollInterval,
		refreshTimeout: cfg.RefreshTimeout,
		now:            time.Now,
		docs: openapi.NewGenerator(
			openapi.WithTitle("agrotel API"),
			openapi.WithVersion(cfg.Version),
			openapi.WithDescription("Agricultural weather telemetry derived from WeatherAPI forecasts"),
			openapi.WithServer("/"),
		),
	}
	h.registerDocs()
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	r.Get("/openapi.json", h.docs.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/telemetry", func(r chi.Router) {
			r.Get("/latest", h.handleLatestTelemetry)
			r.Post("/refresh", h.handleRefresh)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.handleListSnapshots)
			r.Get("/{id}", h.handleGetSnapshot)
		})
	})

	return r
}

func (h *Handler) registerDocs() {
	for _, route := range []openapi.Route{
		{Method: http.MethodGet, Path: "/health", OperationID: "getHealth", Summary: "Liveness probe", Tag: "Health", Response: HealthResponse{}},
		{Method: http.MethodGet, Path: "/ready", OperationID: "getReady", Summary: "Readiness probe", Tag: "Health", Response: ReadyResponse{}},
		{Method: http.MethodGet, Path: "/api/v1/telemetry/latest", OperationID: "getLatestTelemetry", Summary: "Newest flat telemetry object", Tag: "Telemetry", Response: TelemetryResponse{}},
		{Method: http.MethodPost, Path: "/api/v1/telemetry/refresh", OperationID: "refreshTelemetry", Summary: "Fetch and store telemetry now", Tag: "Telemetry", Status: http.StatusCreated, Response: SnapshotResponse{}},
		{
			Method: http.MethodGet, Path: "/api/v1/snapshots", OperationID: "listSnapshots", Summary: "Stored snapshots, newest first", Tag: "Snapshots",
			Response: ListSnapshotsResponse{},
			Query: []openapi.QueryParam{
				{Name: "limit", Type: "integer", Default: store.DefaultListOptions().Limit},
				{Name: "offset", Type: "integer", Default: 0},
			},
		},
		{Method: http.MethodGet, Path: "/api/v1/snapshots/{id}", OperationID: "getSnapshot", Summary: "One stored snapshot", Tag: "Snapshots", Response: SnapshotResponse{}},
	} {
		h.docs.RegisterRoute(route)
	}
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request. remote_addr is the client address
// after RealIP has applied the proxy headers.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "check", "database", "error", err)
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["database"] = "ok"

	// Stale telemetry is reported but does not fail readiness.
	var latest *time.Time
	if snap, err := h.store.GetLatestSnapshot(r.Context()); err == nil {
		latest = &snap.FetchedAt
	} else if !store.IsNotFound(err) {
		h.logger.Warn("readiness telemetry check failed", "error", err)
	}
	now := h.now()
	status := monitoring.TelemetryFreshness(latest, now, h.pollInterval)
	checks["telemetry"] = string(status)

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status:  "ready",
		Checks:  checks,
		Message: monitoring.FreshnessMessage(status, latest, now),
	})
}

// =============================================================================
// Telemetry Handlers
// =============================================================================

func (h *Handler) handleLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.GetLatestSnapshot(r.Context())
	if err != nil {
		if store.IsNotFound(err) {
			h.writeError(w, http.StatusNotFound, "no telemetry recorded yet", "not_found")
			return
		}
		h.logger.Error("failed to get latest snapshot", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get telemetry", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, TelemetryResponse(snap.Telemetry.Flatten()))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.refreshTimeout)
		defer cancel()
	}

	snap, err := h.refresher.RefreshNow(ctx)
	if err != nil {
		var storeErr *store.StoreError
		switch {
		case errors.As(err, &storeErr):
			h.logger.Error("failed to store refreshed snapshot", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to store telemetry", "internal_error")
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			h.logger.Warn("telemetry refresh timed out", "timeout", h.refreshTimeout, "error", err)
			h.writeError(w, http.StatusGatewayTimeout, "telemetry refresh timed out", "timeout")
		default:
			// Upstream errors stay in the log; they can carry provider details.
			h.logger.Warn("telemetry refresh failed", "error", err)
			h.writeError(w, http.StatusBadGateway, "weather provider unavailable", "fetch_failed")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, snapshotToResponse(snap))
}

// =============================================================================
// Snapshot Handlers
// =============================================================================

func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer", "invalid_query")
			return
		}
		opts.Limit = l
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		o, err := strconv.Atoi(offset)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "offset must be an integer", "invalid_query")
			return
		}
		opts.Offset = o
	}
	opts = opts.Normalize()

	snapshots, err := h.store.ListSnapshots(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list snapshots", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list snapshots", "internal_error")
		return
	}
	total, err := h.store.CountSnapshots(r.Context())
	if err != nil {
		h.logger.Error("failed to count snapshots", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list snapshots", "internal_error")
		return
	}

	resp := ListSnapshotsResponse{
		Snapshots: make([]SnapshotResponse, 0, len(snapshots)),
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	}
	for i := range snapshots {
		resp.Snapshots = append(resp.Snapshots, snapshotToResponse(&snapshots[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := h.store.GetSnapshot(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			h.writeError(w, http.StatusNotFound, "snapshot not found", "not_found")
			return
		}
		h.logger.Error("failed to get snapshot", "error", err, "snapshot_id", id)
		h.writeError(w, http.StatusInternalServerError, "failed to get snapshot", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, snapshotToResponse(snap))
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
