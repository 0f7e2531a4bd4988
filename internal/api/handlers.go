package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coursehub/internal/auth"
	"coursehub/internal/course"
	"coursehub/internal/models"
	"coursehub/internal/storage"

	"github.com/sony/gobreaker"
)

// maxJSONBody caps request bodies that are decoded as JSON.
const maxJSONBody = 1 << 20

// Pinger is implemented by dependencies that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains HTTP handlers for the course API
type Handlers struct {
	service        *course.Service
	storage        storage.Storage
	rateLimitStore Pinger
	maxUploadSize  int64
	version        string
	startTime      time.Time
}

// HandlerOption configures optional handler behavior.
type HandlerOption func(*Handlers)

// WithRateLimitStore reports the bucket store in the health check.
func WithRateLimitStore(store Pinger) HandlerOption {
	return func(h *Handlers) { h.rateLimitStore = store }
}

// WithMaxUploadSize caps multipart submission bodies. Zero disables the cap.
func WithMaxUploadSize(n int64) HandlerOption {
	return func(h *Handlers) { h.maxUploadSize = n }
}

// WithVersion sets the version reported by the health check.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates a new handlers instance
func NewHandlers(service *course.Service, store storage.Storage, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		service:   service,
		storage:   store,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck reports storage and rate-limit store health.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version
	response.Uptime = time.Since(h.startTime).Round(time.Second).String()

	if err := h.storage.Ping(ctx); err != nil {
		slog.Error("Storage health check failed", "error", err)
		response.AddComponent("storage", models.StatusUnhealthy, err.Error())
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
	}

	if h.rateLimitStore != nil {
		// The limiter fails open, so a broken bucket store only degrades.
		if err := h.rateLimitStore.Ping(ctx); err != nil {
			message := err.Error()
			if errors.Is(err, gobreaker.ErrOpenState) {
				message = "circuit breaker open, requests are not limited"
			}
			response.AddComponent("rate_limit", models.StatusDegraded, message)
		} else {
			response.AddComponent("rate_limit", models.StatusHealthy, "Rate limit store is operational")
		}
	}

	status := http.StatusOK
	if response.Status == models.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message, errorCode))
}

// writeServiceError maps a service error to its HTTP response. Anything that
// is not a ServiceError is reported as an internal error.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *course.ServiceError
	if !errors.As(err, &se) {
		se = course.NewInternalError("Internal server error", err)
	}

	if se.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, se.StatusCode, models.NewErrorResponse("Internal server error", se.Code))
		return
	}

	errorResp := models.NewErrorResponse(se.Message, se.Code)
	if len(se.Details) > 0 {
		errorResp.WithDetails(se.Details)
	}
	writeJSON(w, se.StatusCode, errorResp)
}

// decodeJSON reads a JSON request body into dst, writing a 400 on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written.
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// principal returns the authenticated caller, or nil.
func principal(r *http.Request) *auth.Principal {
	return auth.PrincipalFromContext(r.Context())
}

// pageParam parses the 1-based page query parameter.
func pageParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("page"))
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("page must be a positive integer")
	}
	return page, nil
}
