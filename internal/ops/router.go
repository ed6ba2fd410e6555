package ops

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ninomaruszewski/roycemorebot/internal/audit"
	"github.com/ninomaruszewski/roycemorebot/internal/extension"
)

// checkTimeout bounds each health probe.
const checkTimeout = 2 * time.Second

// Handler returns the router. It is exported for tests and embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/audit", s.handleListAuditLogs)

		r.Route("/extensions", func(r chi.Router) {
			r.Get("/", s.handleListExtensions)
			r.Post("/{name}/reload", s.handleReloadExtension)
		})
	})

	return r
}

// handleHealth runs every probe. Any failure turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(s.checks))
	healthy := true
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()
		if err != nil {
			healthy = false
			results[c.Name] = err.Error()
			continue
		}
		results[c.Name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"state":   s.state.State().String(),
		"version": s.version,
		"checks":  results,
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"state": s.state.State().String()})
}

func (s *Server) handleListExtensions(w http.ResponseWriter, _ *http.Request) {
	infos, err := s.extensions.List()
	if err != nil {
		s.logger.Error("failed to list extensions", "error", err)
		writeInternalError(w, "failed to list extensions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"extensions": infos, "count": len(infos)})
}

// handleReloadExtension reloads one extension, like the reload chat command.
func (s *Server) handleReloadExtension(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := audit.WithActor(r.Context(), "ops:"+requestID(r.Context()))

	err := s.extensions.Reload(ctx, name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"extension": name, "state": extension.StateLoaded})
	case errors.Is(err, extension.ErrInvalidName):
		writeBadRequest(w, err.Error())
	case errors.Is(err, extension.ErrExtensionNotLoaded):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeError(w, http.StatusUnprocessableEntity, ErrCodeReloadFailed, err.Error())
	}
}

// handleListAuditLogs returns paginated audit entries.
//
// Query parameters:
//   - action: load, unload, reload, command, startup, shutdown
//   - entity_type: extension, command, lifecycle
//   - entity_id: extension or command name
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	repo := s.audit()
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := repo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
