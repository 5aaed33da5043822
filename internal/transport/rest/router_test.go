package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/backend/internal/schedule"
	"carelink/backend/internal/store/memory"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, pingErr error) http.Handler {
	t.Helper()
	ledger := schedule.NewLedger(memory.New(), time.UTC)
	return NewRouter(fakePinger{err: pingErr}, ledger, nil, discardLogger())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestRouter(t, errors.New("db down")), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAvailabilityLifecycle(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPut, "/api/caregivers/cg-1/availability/default", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Windows []struct {
			ID        string `json:"id"`
			DayOfWeek int    `json:"day_of_week"`
		} `json:"windows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Windows, 5)

	rec = do(t, h, http.MethodPost, "/api/caregivers/cg-1/availability",
		`{"day_of_week":6,"start_time":"10:00","end_time":"14:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/caregivers/cg-1/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Windows, 6)

	rec = do(t, h, http.MethodDelete, "/api/availability/"+list.Windows[0].ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/availability/"+list.Windows[0].ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAvailability_RejectsBadWindow(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := do(t, h, http.MethodPost, "/api/caregivers/cg-1/availability",
		`{"day_of_week":2,"start_time":"14:00","end_time":"10:00"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/caregivers/cg-1/availability", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleBlocks(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/caregivers/cg-1/schedule",
		`{"date":"2025-11-11","start_time":"12:00","end_time":"13:00","type":"break"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = do(t, h, http.MethodPost, "/api/caregivers/cg-1/schedule",
		`{"date":"2025-11-11","start_time":"12:30","end_time":"14:00","reason":"dentist"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/caregivers/cg-1/schedule",
		`{"date":"2025-11-11","start_time":"15:00","end_time":"16:00","type":"appointment"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/caregivers/cg-1/schedule?date=2025-11-11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries struct {
		Entries []struct {
			Type  string `json:"type"`
			Notes string `json:"notes"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries.Entries, 1)
	require.Equal(t, "break", entries.Entries[0].Type)

	rec = do(t, h, http.MethodDelete, "/api/schedule/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}
