// Package api serves the detention tracker over HTTP for phone shortcuts,
// dispatch dashboards and other local clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sadopc/dwell/internal/invoice"
	"github.com/sadopc/dwell/internal/logger"
	"github.com/sadopc/dwell/internal/store"
	"github.com/sadopc/dwell/internal/tracker"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// Server is the HTTP API server.
type Server struct {
	tracker        *tracker.Service
	invoices       *invoice.Service
	store          *store.Store
	metricsEnabled bool
}

// NewServer creates a server on top of the tracker and invoice services.
func NewServer(t *tracker.Service, inv *invoice.Service) *Server {
	return &Server{tracker: t, invoices: inv, store: t.Store()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/facilities", func(r chi.Router) {
			r.Get("/", s.handleListFacilities)
			r.Post("/", s.handleCreateFacility)
		})
		r.Route("/brokers", func(r chi.Router) {
			r.Get("/", s.handleListBrokers)
			r.Post("/", s.handleCreateBroker)
		})
		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Get("/active", s.handleActive)
			r.Post("/checkin", s.handleCheckIn)
			r.Get("/{id}", s.handleGetEvent)
			r.Post("/{id}/checkout", s.handleCheckOut)
			r.Post("/{id}/locations", s.handleAddLocation)
			r.Post("/{id}/photos", s.handleAddPhoto)
		})
		r.Route("/calc", func(r chi.Router) {
			r.Post("/timer", s.handleCalcTimer)
			r.Post("/settlement", s.handleCalcSettlement)
		})
		r.Get("/stats", s.handleStats)
		r.Get("/stats/facilities", s.handleFacilityStats)
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", s.handleListInvoices)
			r.Post("/", s.handleCreateInvoice)
			r.Get("/overdue", s.handleOverdueInvoices)
			r.Get("/{id}", s.handleGetInvoice)
			r.Post("/{id}/send", s.handleSendInvoice)
			r.Post("/{id}/paid", s.handlePayInvoice)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// requestID tags each request with the caller's X-Request-Id or a fresh
// uuid, and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger puts a request-scoped logger on the context and logs each
// request once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.WithKV(r.Context(), "request_id", middleware.GetReqID(r.Context()))

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.DebugKV(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorKV(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": err.Error(),
			"status":  status,
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrAlreadyCheckedIn),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, tracker.ErrFacilityArchived):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, store.ErrNoEvents),
		errors.Is(err, store.ErrRepeatedEvent),
		errors.Is(err, store.ErrUnknownEventType),
		errors.Is(err, tracker.ErrInvalidLocation),
		errors.Is(err, tracker.ErrEmptyPhotoPath),
		errors.Is(err, invoice.ErrNoRecipient):
		return http.StatusBadRequest
	case errors.Is(err, invoice.ErrMailerDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, chi.URLParam(r, "id"))
	}
	return id, nil
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, v)
	}
	return &n, nil
}

// queryTime accepts either a date (2006-01-02, UTC midnight) or RFC3339.
func queryTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, v)
	}
	return t, nil
}
