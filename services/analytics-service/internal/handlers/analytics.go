package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/analytics-service/internal/storage"
)

const (
	defaultRangeDays = 30
	maxRangeDays     = 366
)

type Metrics interface {
	Daily(ctx context.Context, teacherID string, from, to time.Time) ([]storage.DailyMetrics, error)
}

type AnalyticsHandler struct {
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewAnalyticsHandler(metrics Metrics, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{metrics: metrics, logger: logger, now: time.Now}
}

func (h *AnalyticsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics/daily", h.Daily)
}

type dailyItem struct {
	Day                 string `json:"day"`
	LessonsBooked       int    `json:"lessons_booked"`
	LessonsCancelled    int    `json:"lessons_cancelled"`
	NotificationsSent   int    `json:"notifications_sent"`
	NotificationsFailed int    `json:"notifications_failed"`
}

// Daily serves the caller's counters for from..to (YYYY-MM-DD, inclusive). Without
// parameters it covers the last 30 days up to today (UTC).
func (h *AnalyticsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	caller, ok := httpx.RequireCaller(w, r)
	if !ok {
		return
	}
	if !caller.IsTeacher() {
		httpx.WriteError(w, http.StatusForbidden, "teachers only")
		return
	}

	now := h.now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -(defaultRangeDays - 1))
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if to.Before(from) {
		httpx.WriteError(w, http.StatusBadRequest, "from must not be after to")
		return
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		httpx.WriteError(w, http.StatusBadRequest, "requested range is too large")
		return
	}

	rows, err := h.metrics.Daily(r.Context(), caller.UserID, from, to)
	if err != nil {
		h.logger.Error("load daily metrics failed", "err", err, "teacher_id", caller.UserID)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	items := make([]dailyItem, 0, len(rows))
	for _, m := range rows {
		items = append(items, dailyItem{
			Day:                 m.Day.Format(time.DateOnly),
			LessonsBooked:       m.LessonsBooked,
			LessonsCancelled:    m.LessonsCancelled,
			NotificationsSent:   m.NotificationsSent,
			NotificationsFailed: m.NotificationsFailed,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"from": from.Format(time.DateOnly),
		"to":   to.Format(time.DateOnly),
		"days": items,
	})
}
