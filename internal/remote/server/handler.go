package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kilupskalvis/qcat/internal/models"
	"github.com/kilupskalvis/qcat/internal/remote"
	"github.com/kilupskalvis/qcat/internal/remote/metastore"
)

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64 // bytes, for JSON endpoints
	DefaultPageLimit  int   // used when a list request has no limit
	MaxPageLimit      int
	RequestsPerMinute int    // per-token rate limit
	AdminToken        string // for admin endpoints
	Webhooks          *WebhookNotifier
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    32 * 1024 * 1024, // 32MB
		DefaultPageLimit:  100,
		MaxPageLimit:      1000,
		RequestsPerMinute: 300,
	}
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(store metastore.CatalogStore, tokens TokenStore, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	auth := authMiddleware(tokens, logger)

	// applyMiddleware runs the first item outermost.
	// Execution order: auth -> rl -> handler
	withAuth := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, rl.middleware)
	}
	// Execution order: auth -> requireWrite -> rl -> handler
	withAuthWrite := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, requireWrite, rl.middleware)
	}

	api := &catalogAPI{store: store, cfg: cfg, logger: logger}
	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := tokens.ListTokens(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: token store unavailable"))
			return
		}
		if _, err := store.ListCatalogs(r.Context(), metastore.ListOptions{Limit: 1}); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: catalog store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Admin endpoints
	if cfg.AdminToken != "" {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("POST /admin/tokens", makeAdminCreateTokenHandler(tokens, logger))
		adminMux.HandleFunc("DELETE /admin/tokens/{id}", makeAdminDeleteTokenHandler(tokens, logger))
		adminMux.HandleFunc("GET /admin/tokens", makeAdminListTokensHandler(tokens, logger))
		adminMux.HandleFunc("POST /admin/catalogs/{id}/prune", makeAdminPruneHandler(store, logger))
		mux.Handle("/admin/", adminAuth(cfg.AdminToken, adminMux))
	}

	// Catalogs
	mux.Handle("GET /api/v1/qa-catalogs", withAuth(api.handleList))
	mux.Handle("POST /api/v1/qa-catalogs", withAuthWrite(api.handleCreate))
	mux.Handle("GET /api/v1/qa-catalogs/{id}", withAuth(api.handleGet))
	mux.Handle("PATCH /api/v1/qa-catalogs/{id}", withAuthWrite(api.handleEdit))
	mux.Handle("DELETE /api/v1/qa-catalogs/{id}", withAuthWrite(api.handleDelete))
	mux.Handle("GET /api/v1/qa-catalogs/{id}/preview", withAuth(api.handlePreview))
	mux.Handle("GET /api/v1/qa-catalogs/{id}/history", withAuth(api.handleHistory))

	// Pairs
	mux.Handle("GET /api/v1/qa-catalogs/{id}/qa-pairs", withAuth(api.handleListPairs))
	mux.Handle("PUT /api/v1/qa-catalogs/{id}/qa-pairs", withAuthWrite(api.handleReplacePairs))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		requestIDMiddleware,
		loggingMiddleware(logger),
	)

	return handler, rl.Stop
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// catalogAPI serves the /api/v1/qa-catalogs routes from one store.
type catalogAPI struct {
	store  metastore.CatalogStore
	cfg    *ServerConfig
	logger *slog.Logger
}

// --- Catalog Handlers ---

func (a *catalogAPI) handleList(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := a.pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	previews, err := a.store.ListCatalogs(r.Context(), metastore.ListOptions{
		Offset: offset,
		Limit:  limit,
		Name:   r.URL.Query().Get("name"),
	})
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previews)
}

func (a *catalogAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req remote.CreateCatalogRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	catalog, err := a.store.CreateCatalog(r.Context(), req.Name, req.Pairs)
	if err != nil {
		a.storeError(w, r, err)
		return
	}

	a.logger.Info("catalog created", "catalog_id", catalog.ID, "pairs", len(req.Pairs), "request_id", requestID(r.Context()))
	a.cfg.Webhooks.NotifyCatalog(EventCatalogCreated, catalog, "")
	writeJSON(w, http.StatusCreated, catalog)
}

func (a *catalogAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	catalog, err := a.store.GetCatalog(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (a *catalogAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := a.store.GetPreview(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *catalogAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.store.GetHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handleEdit applies one edit batch. The response may describe a new
// version with a different id.
func (a *catalogAPI) handleEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var edit models.CatalogEdit
	if err := readJSON(r, a.cfg.MaxRequestBody, &edit); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	catalog, err := a.store.EditCatalog(r.Context(), id, &edit)
	if err != nil {
		a.storeError(w, r, err)
		return
	}

	a.logger.Info("catalog edited",
		"catalog_id", id,
		"new_id", catalog.ID,
		"revision", catalog.Revision,
		"additions", len(edit.Additions),
		"updates", len(edit.Updates),
		"deletions", len(edit.Deletions),
		"request_id", requestID(r.Context()),
	)
	a.cfg.Webhooks.NotifyCatalog(EventCatalogEdited, catalog, id)
	writeJSON(w, http.StatusOK, catalog)
}

func (a *catalogAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	previous, err := a.store.DeleteCatalog(r.Context(), id)
	if err != nil {
		a.storeError(w, r, err)
		return
	}

	var result remote.DeleteCatalogResult
	if previous != "" {
		result.PreviousRevisionID = &previous
	}
	a.logger.Info("catalog deleted", "catalog_id", id, "previous_id", previous, "request_id", requestID(r.Context()))
	a.cfg.Webhooks.NotifyDeleted(id)
	writeJSON(w, http.StatusOK, result)
}

// --- Pair Handlers ---

func (a *catalogAPI) handleListPairs(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := a.pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	pairs, err := a.store.ListPairs(r.Context(), r.PathValue("id"), offset, limit)
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (a *catalogAPI) handleReplacePairs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req remote.ReplacePairsRequest
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	catalog, err := a.store.ReplacePairs(r.Context(), id, req.Pairs)
	if err != nil {
		a.storeError(w, r, err)
		return
	}

	a.logger.Info("catalog pairs replaced", "catalog_id", id, "new_id", catalog.ID, "pairs", len(req.Pairs), "request_id", requestID(r.Context()))
	a.cfg.Webhooks.NotifyCatalog(EventCatalogEdited, catalog, id)
	writeJSON(w, http.StatusOK, catalog)
}

// pageParams reads offset and limit from the query string.
func (a *catalogAPI) pageParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = a.cfg.DefaultPageLimit

	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
	}
	if a.cfg.MaxPageLimit > 0 && limit > a.cfg.MaxPageLimit {
		return 0, 0, fmt.Errorf("limit must not exceed %d", a.cfg.MaxPageLimit)
	}
	return offset, limit, nil
}

// storeError maps a store error onto an HTTP response.
func (a *catalogAPI) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("catalog '%s' not found", r.PathValue("id")))
	case errors.Is(err, metastore.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		a.logger.Error("store error", "error", err, "path", r.URL.Path, "request_id", requestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func adminAuth(adminToken string, next http.Handler) http.Handler {
	expected := "Bearer " + adminToken
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, "auth_failed", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, remote.ErrorResponse{Error: code, Message: message})
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// --- Admin Handlers ---

func makeAdminCreateTokenHandler(tokens TokenStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description string `json:"description"`
			Permission  string `json:"permission"`
		}
		if err := readJSON(r, 1<<20, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
			return
		}
		if req.Permission == "" {
			req.Permission = PermissionRead
		}
		if req.Permission != PermissionRead && req.Permission != PermissionWrite {
			writeError(w, http.StatusBadRequest, "bad_request", "permission must be 'ro' or 'rw'")
			return
		}

		rawToken, info, err := tokens.CreateToken(req.Description, req.Permission)
		if err != nil {
			logger.Error("create token", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, remote.AdminTokenCreateResponse{
			Token:       rawToken,
			ID:          info.ID,
			Description: info.Desc,
			Permission:  info.Permission,
		})
	}
}

func makeAdminListTokensHandler(tokens TokenStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := tokens.ListTokens()
		if err != nil {
			logger.Error("list tokens", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		// Metadata only, never hashes.
		entries := make([]remote.AdminTokenInfo, len(list))
		for i, t := range list {
			entries[i] = remote.AdminTokenInfo{ID: t.ID, Description: t.Desc, Permission: t.Permission}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func makeAdminDeleteTokenHandler(tokens TokenStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := tokens.DeleteToken(id); err != nil {
			logger.Warn("delete token", "error", err, "token_id", id)
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// makeAdminPruneHandler deletes old versions of a catalog, keeping the
// newest ?keep=N (default 1).
func makeAdminPruneHandler(store metastore.CatalogStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keep := 1
		if v := r.URL.Query().Get("keep"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "keep must be an integer")
				return
			}
			keep = n
		}

		id := r.PathValue("id")
		result, err := PruneHistory(r.Context(), store, id, keep, logger)
		switch {
		case errors.Is(err, ErrInvalidKeep):
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, metastore.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("catalog '%s' not found", id))
		case err != nil:
			logger.Error("prune history", "error", err, "catalog_id", id)
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		default:
			writeJSON(w, http.StatusOK, result)
		}
	}
}
