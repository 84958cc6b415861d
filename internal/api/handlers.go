/**
 * @description
 * HTTP handlers for the round-up API. Every registered resource gets the same five
 * CRUD handlers; the resource name is bound when the routes are registered.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - internal/app: the service the handlers delegate to.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sadaqah/roundup-service/internal/app"
	"github.com/sadaqah/roundup-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// RoundupService is the subset of app.Service the handlers use.
type RoundupService interface {
	List(ctx context.Context, resource, owner string, params app.ListParams) ([]domain.Row, error)
	Get(ctx context.Context, resource, owner, id string) (domain.Row, error)
	Create(ctx context.Context, resource, owner string, body domain.Row) (domain.Row, error)
	Update(ctx context.Context, resource, owner, id string, body domain.Row) (domain.Row, error)
	Delete(ctx context.Context, resource, owner, id string) (string, error)
	CurrentUser(ctx context.Context, owner string) (domain.Row, error)
	UpdateMyData(ctx context.Context, owner, id string, body domain.Row) (domain.Row, error)
	Ping(ctx context.Context) error
}

// Handler holds the dependencies for the HTTP handlers.
type Handler struct {
	service RoundupService
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service RoundupService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger.With("component", "api")}
}

func (h *Handler) list(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		owner, _ := CallerEmail(r.Context())
		rows, err := h.service.List(r.Context(), resource, owner, app.ListParams{
			Limit:  limit,
			SortBy: strings.TrimSpace(r.URL.Query().Get("sortBy")),
		})
		if err != nil {
			h.fail(w, r, resource, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func (h *Handler) get(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := CallerEmail(r.Context())
		row, err := h.service.Get(r.Context(), resource, owner, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, resource, err)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

func (h *Handler) create(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeBody(w, r)
		if !ok {
			return
		}
		owner, _ := CallerEmail(r.Context())
		row, err := h.service.Create(r.Context(), resource, owner, body)
		if err != nil {
			h.fail(w, r, resource, err)
			return
		}
		writeJSON(w, http.StatusCreated, row)
	}
}

func (h *Handler) update(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeBody(w, r)
		if !ok {
			return
		}
		owner, _ := CallerEmail(r.Context())
		row, err := h.service.Update(r.Context(), resource, owner, chi.URLParam(r, "id"), body)
		if err != nil {
			h.fail(w, r, resource, err)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

func (h *Handler) delete(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := CallerEmail(r.Context())
		id, err := h.service.Delete(r.Context(), resource, owner, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, resource, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "success": true})
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	owner, _ := CallerEmail(r.Context())
	row, err := h.service.CurrentUser(r.Context(), owner)
	if err != nil {
		h.fail(w, r, domain.ResourceUsers, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handler) handleMyData(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	owner, _ := CallerEmail(r.Context())
	row, err := h.service.UpdateMyData(r.Context(), owner, chi.URLParam(r, "id"), body)
	if err != nil {
		h.fail(w, r, domain.ResourceUsers, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleLogin and handleLogout stand in for a real session flow: identity is
// established per request by the IdentityProvider.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	owner, _ := CallerEmail(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"token": "mock-token", "email": owner})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// fail writes the mapped error. Server-side detail only goes to the log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, resource string, err error) {
	status, message := mapError(err)
	owner, _ := CallerEmail(r.Context())
	attrs := []any{"resource", resource, "method", r.Method, "owner", owner, "status", status, "error", err}
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error("request failed", attrs...)
	default:
		h.logger.Debug("request rejected", attrs...)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeError(w, status, message)
}

// decodeBody reads a JSON object. Numbers are kept as json.Number so money values
// reach the service without float rounding. An empty body is an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request) (domain.Row, bool) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()

	var body domain.Row
	if err := decoder.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Row{}, true
		}
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	if body == nil {
		body = domain.Row{}
	}
	return body, true
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("must be >= 0")
	}
	return value, nil
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
