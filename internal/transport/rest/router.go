// Package rest serves the caregiver calendar endpoints, health checks and
// the live status WebSocket.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/schedule"
	"carelink/backend/internal/store"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type calendar interface {
	ListAvailability(ctx context.Context, caregiverID string) ([]domain.AvailabilityWindow, error)
	CreateAvailability(ctx context.Context, in schedule.WindowInput) (domain.AvailabilityWindow, error)
	DeleteAvailability(ctx context.Context, id string) (bool, error)
	SetDefaultAvailability(ctx context.Context, caregiverID string) ([]domain.AvailabilityWindow, error)
	ListByCaregiverAndDate(ctx context.Context, caregiverID, date string) ([]domain.ScheduleEntry, error)
	BlockTime(ctx context.Context, caregiverID, date, start, end, reason string) (string, error)
	AddBreak(ctx context.Context, caregiverID, date, start, end string) (string, error)
	DeleteEntry(ctx context.Context, id string) (bool, error)
}

type handlers struct {
	store pinger
	cal   calendar
	log   *slog.Logger
}

func NewRouter(backend pinger, cal calendar, ws http.Handler, log *slog.Logger) *mux.Router {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{store: backend, cal: cal, log: log.With(slog.String("component", "http"))}

	r := mux.NewRouter()
	r.Use(h.recoverer)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if ws != nil {
		r.Handle("/ws", ws).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/caregivers/{caregiverID}/availability", h.listAvailability).Methods(http.MethodGet)
	api.HandleFunc("/caregivers/{caregiverID}/availability", h.createAvailability).Methods(http.MethodPost)
	api.HandleFunc("/caregivers/{caregiverID}/availability/default", h.defaultAvailability).Methods(http.MethodPut)
	api.HandleFunc("/availability/{id}", h.deleteAvailability).Methods(http.MethodDelete)
	api.HandleFunc("/caregivers/{caregiverID}/schedule", h.listSchedule).Methods(http.MethodGet).Queries("date", "{date}")
	api.HandleFunc("/caregivers/{caregiverID}/schedule", h.blockTime).Methods(http.MethodPost)
	api.HandleFunc("/schedule/{id}", h.deleteEntry).Methods(http.MethodDelete)
	return r
}

func (h *handlers) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				h.log.ErrorContext(r.Context(), "handler panicked", slog.Any("panic", p), slog.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.WarnContext(ctx, "health check failed", slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listAvailability(w http.ResponseWriter, r *http.Request) {
	windows, err := h.cal.ListAvailability(r.Context(), mux.Vars(r)["caregiverID"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": nonNil(windows)})
}

type windowRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsActive  *bool  `json:"is_active"`
}

func (h *handlers) createAvailability(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	win, err := h.cal.CreateAvailability(r.Context(), schedule.WindowInput{
		CaregiverID: mux.Vars(r)["caregiverID"],
		DayOfWeek:   req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsActive:    active,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, win)
}

func (h *handlers) defaultAvailability(w http.ResponseWriter, r *http.Request) {
	windows, err := h.cal.SetDefaultAvailability(r.Context(), mux.Vars(r)["caregiverID"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": nonNil(windows)})
}

func (h *handlers) deleteAvailability(w http.ResponseWriter, r *http.Request) {
	ok, err := h.cal.DeleteAvailability(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "availability window not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entries, err := h.cal.ListByCaregiverAndDate(r.Context(), vars["caregiverID"], vars["date"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}

type blockRequest struct {
	Date      string           `json:"date"`
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
	Type      domain.EntryType `json:"type"`
	Reason    string           `json:"reason"`
}

// blockTime records a break or a blocked interval. Appointment entries are
// only ever created through bookings.
func (h *handlers) blockTime(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	caregiverID := mux.Vars(r)["caregiverID"]

	var id string
	var err error
	switch req.Type {
	case domain.EntryBreak:
		id, err = h.cal.AddBreak(r.Context(), caregiverID, req.Date, req.StartTime, req.EndTime)
	case "", domain.EntryBlocked:
		id, err = h.cal.BlockTime(r.Context(), caregiverID, req.Date, req.StartTime, req.EndTime, req.Reason)
	default:
		writeError(w, http.StatusBadRequest, "type must be break or blocked")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *handlers) deleteEntry(w http.ResponseWriter, r *http.Request) {
	ok, err := h.cal.DeleteEntry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "schedule entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var overlap *schedule.OverlapError
	switch {
	case errors.As(err, &overlap):
		writeError(w, http.StatusConflict, overlap.Error())
	case errors.Is(err, schedule.ErrInvalidEntry), errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrInvalidClock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrStorage):
		h.log.ErrorContext(r.Context(), "storage unavailable", slog.String("path", r.URL.Path), slog.Any("err", err))
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		h.log.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
