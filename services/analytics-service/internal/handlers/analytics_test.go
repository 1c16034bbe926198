package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/analytics-service/internal/storage"
)

type fakeMetrics struct {
	teacherID string
	from, to  time.Time
}

func (f *fakeMetrics) Daily(ctx context.Context, teacherID string, from, to time.Time) ([]storage.DailyMetrics, error) {
	f.teacherID, f.from, f.to = teacherID, from, to
	return []storage.DailyMetrics{{Day: to, LessonsBooked: 3, NotificationsSent: 2}}, nil
}

func serve(t *testing.T, h *AnalyticsHandler, url, role string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if role != "" {
		req.Header.Set(httpx.UserIDHeader, "t1")
		req.Header.Set(httpx.RoleHeader, role)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestDaily_DefaultRange(t *testing.T) {
	fake := &fakeMetrics{}
	h := NewAnalyticsHandler(fake, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2026, 3, 31, 22, 0, 0, 0, time.UTC) }

	rec := serve(t, h, "/api/v1/analytics/daily", "teacher")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fake.teacherID != "t1" {
		t.Fatalf("expected caller's metrics, got %q", fake.teacherID)
	}
	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
		Days []struct {
			Day           string `json:"day"`
			LessonsBooked int    `json:"lessons_booked"`
		} `json:"days"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.From != "2026-03-02" || body.To != "2026-03-31" {
		t.Fatalf("expected 30 day default range, got %s..%s", body.From, body.To)
	}
	if len(body.Days) != 1 || body.Days[0].Day != "2026-03-31" || body.Days[0].LessonsBooked != 3 {
		t.Fatalf("unexpected days %+v", body.Days)
	}
}

func TestDaily_Validation(t *testing.T) {
	h := NewAnalyticsHandler(&fakeMetrics{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cases := []struct {
		url    string
		role   string
		status int
	}{
		{"/api/v1/analytics/daily", "", http.StatusUnauthorized},
		{"/api/v1/analytics/daily", "student", http.StatusForbidden},
		{"/api/v1/analytics/daily?from=03-01-2026", "teacher", http.StatusBadRequest},
		{"/api/v1/analytics/daily?from=2026-03-10&to=2026-03-01", "teacher", http.StatusBadRequest},
		{"/api/v1/analytics/daily?from=2024-01-01&to=2026-03-01", "teacher", http.StatusBadRequest},
		{"/api/v1/analytics/daily?from=2026-03-01&to=2026-03-01", "teacher", http.StatusOK},
	}
	for _, tc := range cases {
		if rec := serve(t, h, tc.url, tc.role); rec.Code != tc.status {
			t.Fatalf("%s as %q: expected %d, got %d", tc.url, tc.role, tc.status, rec.Code)
		}
	}
}
