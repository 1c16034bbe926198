package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/lessons"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage"
)

const maxEventsRange = 62 * 24 * time.Hour

type Users interface {
	ListTeachers(ctx context.Context) ([]model.Teacher, error)
	TeacherBySlug(ctx context.Context, slug string) (model.Teacher, error)
	TeacherByID(ctx context.Context, id string) (model.Teacher, error)
	StudentByID(ctx context.Context, id string) (model.Student, error)
	SetCalendarID(ctx context.Context, teacherID, calendarID string) error
}

type Calendars interface {
	availability.BusyIntervalSource
	Events(ctx context.Context, teacher availability.TeacherRef, window availability.Interval) ([]availability.CalendarEvent, error)
	Calendars(ctx context.Context, teacher availability.TeacherRef) ([]googlex.CalendarInfo, string, error)
	HasCalendar(ctx context.Context, teacher availability.TeacherRef, calendarID string) (bool, error)
}

type Lessons interface {
	Book(ctx context.Context, req lessons.BookRequest) (availability.EventRef, error)
	Cancel(ctx context.Context, req lessons.CancelRequest) (availability.CalendarEvent, error)
}

type BookingHandler struct {
	users     Users
	calendars Calendars
	lessons   Lessons
	idem      *storage.IdempotencyRepository
	policy    availability.BookingPolicy
	logger    *slog.Logger
	now       func() time.Time
}

func NewBookingHandler(users Users, calendars Calendars, lessonSvc Lessons, idem *storage.IdempotencyRepository, policy availability.BookingPolicy, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		users:     users,
		calendars: calendars,
		lessons:   lessonSvc,
		idem:      idem,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/public/teachers", h.ListTeachers)
	mux.HandleFunc("GET /api/v1/public/teachers/{slug}", h.Teacher)
	mux.HandleFunc("GET /api/v1/public/teachers/{slug}/slots", h.Slots)
	mux.HandleFunc("GET /api/v1/lessons/events", h.Events)
	mux.HandleFunc("POST /api/v1/lessons", h.Book)
	mux.HandleFunc("POST /api/v1/lessons/cancel", h.Cancel)
	mux.HandleFunc("GET /api/v1/calendars", h.ListCalendars)
	mux.HandleFunc("PATCH /api/v1/calendars", h.SelectCalendar)
}

type teacherItem struct {
	ID               string `json:"id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Slug             string `json:"slug"`
	Timezone         string `json:"timezone,omitempty"`
	WorkingStart     string `json:"working_start,omitempty"`
	WorkingEnd       string `json:"working_end,omitempty"`
	SlotMinutes      int    `json:"slot_minutes,omitempty"`
	WeekendsExcluded bool   `json:"weekends_excluded"`
	GoogleConnected  bool   `json:"google_connected"`
}

func toTeacherItem(t model.Teacher, detailed bool) teacherItem {
	item := teacherItem{
		ID:               t.ID,
		FirstName:        t.FirstName,
		LastName:         t.LastName,
		Slug:             t.Slug,
		WeekendsExcluded: t.WeekendsExcluded,
		GoogleConnected:  t.GoogleConnected,
	}
	if detailed {
		if p, err := t.Profile(); err == nil {
			item.Timezone = p.Timezone
			item.WorkingStart = p.DayStart.String()
			item.WorkingEnd = p.DayEnd.String()
			item.SlotMinutes = int(p.SlotDuration / time.Minute)
		}
	}
	return item
}

func (h *BookingHandler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.users.ListTeachers(r.Context())
	if err != nil {
		h.logger.Error("list teachers failed", "err", err)
		http.Error(w, "failed to list teachers", http.StatusInternalServerError)
		return
	}
	items := make([]teacherItem, 0, len(teachers))
	for _, t := range teachers {
		items = append(items, toTeacherItem(t, false))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"teachers": items})
}

func (h *BookingHandler) Teacher(w http.ResponseWriter, r *http.Request) {
	teacher, ok := h.teacherBySlug(w, r, r.PathValue("slug"))
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTeacherItem(teacher, true))
}

type slotItem struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Bookable bool   `json:"bookable"`
}

type slotsResponse struct {
	Date     string     `json:"date"`
	Timezone string     `json:"timezone"`
	Slots    []slotItem `json:"slots"`
	Message  string     `json:"message,omitempty"`
	Warning  string     `json:"warning,omitempty"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	day, err := availability.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Date is required (YYYY-MM-DD)")
		return
	}
	teacher, ok := h.teacherBySlug(w, r, r.PathValue("slug"))
	if !ok {
		return
	}
	profile, err := teacher.Profile()
	if err != nil {
		h.logger.Warn("teacher profile malformed; using defaults", "teacher_id", teacher.ID, "err", err)
		profile = availability.DefaultProfile()
	}

	result, err := availability.DayAvailability(r.Context(), h.calendars, availability.TeacherRef(teacher.ID), profile, day)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if result.Warning != "" {
		h.logger.Warn("availability degraded", "teacher_id", teacher.ID, "date", day.String(), "warning", result.Warning)
	}

	loc, _ := profile.Location()
	bookable := availability.Bookable(result.Slots, h.now(), h.policy)
	resp := slotsResponse{
		Date:     day.String(),
		Timezone: profile.Timezone,
		Slots:    make([]slotItem, 0, len(result.Slots)),
		Message:  result.Reason,
		Warning:  result.Warning,
	}
	for i, s := range result.Slots {
		resp.Slots = append(resp.Slots, slotItem{
			Start:    s.Start.In(loc).Format(time.RFC3339),
			End:      s.End.In(loc).Format(time.RFC3339),
			Bookable: bookable[i],
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type eventItem struct {
	EventID   string `json:"event_id"`
	Summary   string `json:"summary"`
	Start     string `json:"start"`
	End       string `json:"end"`
	AllDay    bool   `json:"all_day"`
	StudentID string `json:"student_id,omitempty"`
	Mine      bool   `json:"mine"`
}

func (h *BookingHandler) Events(w http.ResponseWriter, r *http.Request) {
	caller, ok := httpx.RequireCaller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	teacher, ok := h.teacherBySlug(w, r, q.Get("teacher_slug"))
	if !ok {
		return
	}
	start, err1 := time.Parse(time.RFC3339, q.Get("start"))
	end, err2 := time.Parse(time.RFC3339, q.Get("end"))
	if err1 != nil || err2 != nil || !end.After(start) {
		httpx.WriteError(w, http.StatusBadRequest, "start and end must be RFC3339 timestamps with end after start")
		return
	}
	if end.Sub(start) > maxEventsRange {
		httpx.WriteError(w, http.StatusBadRequest, "requested range is too large")
		return
	}

	isTeacher := caller.UserID == teacher.ID
	if !isTeacher {
		student, err := h.users.StudentByID(r.Context(), caller.UserID)
		if err != nil || student.TeacherSlug != teacher.Slug {
			httpx.WriteError(w, http.StatusForbidden, "not allowed to view this calendar")
			return
		}
	}

	events, err := h.calendars.Events(r.Context(), availability.TeacherRef(teacher.ID), availability.Interval{Start: start, End: end})
	if err != nil {
		h.writeLessonError(w, err, "")
		return
	}

	items := make([]eventItem, 0, len(events))
	for _, ev := range events {
		owner := lessons.EventOwner(ev)
		item := eventItem{
			EventID: string(ev.Ref),
			Summary: "Busy",
			Start:   formatEventTime(ev.Start, ev.AllDay),
			End:     formatEventTime(ev.End, ev.AllDay),
			AllDay:  ev.AllDay,
			Mine:    owner != "" && owner == caller.UserID,
		}
		if isTeacher || item.Mine {
			item.Summary = ev.Summary
			item.StudentID = owner
		}
		items = append(items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": items})
}

func formatEventTime(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

type bookRequest struct {
	TeacherID    string `json:"teacher_id"`
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

type bookResponse struct {
	EventID string `json:"event_id"`
	Message string `json:"message"`
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	caller, ok := httpx.RequireCaller(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.TeacherID = strings.TrimSpace(req.TeacherID)
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.StudentEmail = strings.TrimSpace(req.StudentEmail)
	if req.TeacherID == "" || req.StudentID == "" || req.StudentName == "" || req.StudentEmail == "" || req.StartTime == "" || req.EndTime == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Missing fields in request")
		return
	}
	if caller.UserID != req.StudentID && caller.UserID != req.TeacherID {
		httpx.WriteError(w, http.StatusForbidden, "you can only book lessons for yourself")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid end_time")
		return
	}
	if !end.After(start) {
		httpx.WriteError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}

	ctx := r.Context()
	teacher, err := h.users.TeacherByID(ctx, req.TeacherID)
	if err != nil {
		h.writeLookupError(w, err, "Teacher not found")
		return
	}
	student, err := h.users.StudentByID(ctx, req.StudentID)
	if err != nil {
		h.writeLookupError(w, err, "Student not found")
		return
	}
	// A booking always pairs a teacher with one of their own students, whoever calls.
	if student.TeacherSlug != teacher.Slug {
		httpx.WriteError(w, http.StatusForbidden, "student is not linked to this teacher")
		return
	}

	book := func() (int, []byte, string) {
		ref, err := h.lessons.Book(ctx, lessons.BookRequest{
			Teacher:      teacher,
			Student:      student,
			StudentName:  req.StudentName,
			StudentEmail: req.StudentEmail,
			Slot:         availability.Interval{Start: start, End: end},
		})
		if err != nil {
			status, msg := h.lessonErrorStatus(err, "Bookings must be made at least 24 hours in advance.")
			body, _ := json.Marshal(map[string]string{"error": msg})
			return status, body, ""
		}
		body, _ := json.Marshal(bookResponse{EventID: string(ref), Message: "Lesson booked"})
		return http.StatusCreated, body, string(ref)
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.idem == nil {
		status, body, _ := book()
		writeRaw(w, status, body)
		return
	}

	tx, err := h.idem.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, exists, err := h.idem.Lock(ctx, tx, caller.UserID, key)
	if err != nil {
		http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
		return
	}
	if exists && rec.StatusCode > 0 {
		writeRaw(w, rec.StatusCode, rec.ResponsePayload)
		return
	}

	status, body, eventID := book()
	// Provider failures stay retryable under the same key.
	if status < http.StatusInternalServerError {
		if err := h.idem.Finalize(ctx, tx, caller.UserID, key, eventID, status, body); err != nil {
			h.logger.Error("finalize idempotency key failed", "err", err)
		} else if err := tx.Commit(ctx); err != nil {
			h.logger.Error("commit idempotency key failed", "err", err)
		}
	}
	writeRaw(w, status, body)
}

type cancelRequest struct {
	EventID   string `json:"event_id"`
	StudentID string `json:"student_id"`
	TeacherID string `json:"teacher_id"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := httpx.RequireCaller(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.TeacherID = strings.TrimSpace(req.TeacherID)
	if req.EventID == "" || req.StudentID == "" || req.TeacherID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "event_id, student_id and teacher_id are required")
		return
	}
	if caller.UserID != req.StudentID {
		httpx.WriteError(w, http.StatusForbidden, "you can only cancel your own lessons")
		return
	}

	ctx := r.Context()
	teacher, err := h.users.TeacherByID(ctx, req.TeacherID)
	if err != nil {
		h.writeLookupError(w, err, "Teacher not found")
		return
	}
	student, err := h.users.StudentByID(ctx, req.StudentID)
	if err != nil {
		h.writeLookupError(w, err, "Student not found")
		return
	}

	if _, err := h.lessons.Cancel(ctx, lessons.CancelRequest{
		Teacher:     teacher,
		Student:     student,
		Event:       availability.EventRef(req.EventID),
		RequesterID: caller.UserID,
	}); err != nil {
		h.writeLessonError(w, err, "Lessons can only be cancelled at least 24 hours in advance.")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"event_id": req.EventID, "status": "cancelled"})
}

type calendarItem struct {
	googlex.CalendarInfo
	Selected bool `json:"selected"`
}

func (h *BookingHandler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireTeacher(w, r)
	if !ok {
		return
	}
	cals, selected, err := h.calendars.Calendars(r.Context(), availability.TeacherRef(caller.UserID))
	if err != nil {
		h.writeLessonError(w, err, "")
		return
	}
	items := make([]calendarItem, 0, len(cals))
	for _, c := range cals {
		items = append(items, calendarItem{
			CalendarInfo: c,
			Selected:     c.ID == selected || (selected == googlex.DefaultCalendarID && c.Primary),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"calendars": items, "selected": selected})
}

func (h *BookingHandler) SelectCalendar(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireTeacher(w, r)
	if !ok {
		return
	}
	var req struct {
		CalendarID string `json:"calendar_id"`
	}
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	req.CalendarID = strings.TrimSpace(req.CalendarID)
	if req.CalendarID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "calendar_id is required")
		return
	}
	found, err := h.calendars.HasCalendar(r.Context(), availability.TeacherRef(caller.UserID), req.CalendarID)
	if err != nil {
		h.writeLessonError(w, err, "")
		return
	}
	if !found {
		httpx.WriteError(w, http.StatusBadRequest, "calendar not found in your Google account")
		return
	}
	if err := h.users.SetCalendarID(r.Context(), caller.UserID, req.CalendarID); err != nil {
		h.writeLookupError(w, err, "Teacher not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"calendar_id": req.CalendarID})
}

func requireTeacher(w http.ResponseWriter, r *http.Request) (httpx.Caller, bool) {
	caller, ok := httpx.RequireCaller(w, r)
	if !ok {
		return caller, false
	}
	if !caller.IsTeacher() {
		httpx.WriteError(w, http.StatusForbidden, "teachers only")
		return caller, false
	}
	return caller, true
}

func (h *BookingHandler) teacherBySlug(w http.ResponseWriter, r *http.Request, slug string) (model.Teacher, bool) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		httpx.WriteError(w, http.StatusBadRequest, "teacher slug is required")
		return model.Teacher{}, false
	}
	teacher, err := h.users.TeacherBySlug(r.Context(), slug)
	if err != nil {
		h.writeLookupError(w, err, "Teacher not found")
		return model.Teacher{}, false
	}
	return teacher, true
}

func (h *BookingHandler) writeLookupError(w http.ResponseWriter, err error, notFound string) {
	if db.IsNotFound(err) {
		httpx.WriteError(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.Error("user lookup failed", "err", err)
	http.Error(w, "failed to load user", http.StatusInternalServerError)
}

func (h *BookingHandler) writeLessonError(w http.ResponseWriter, err error, tooLate string) {
	status, msg := h.lessonErrorStatus(err, tooLate)
	httpx.WriteError(w, status, msg)
}

func (h *BookingHandler) lessonErrorStatus(err error, tooLate string) (int, string) {
	var perr *availability.ProviderError
	switch {
	case errors.Is(err, availability.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, availability.ErrUnauthorized):
		return http.StatusForbidden, "not allowed to modify this lesson"
	case errors.Is(err, availability.ErrTooLate):
		return http.StatusForbidden, tooLate
	case errors.Is(err, lessons.ErrConflict):
		return http.StatusConflict, "That time is no longer available."
	case errors.Is(err, lessons.ErrNotFound):
		return http.StatusNotFound, "Lesson not found"
	case errors.As(err, &perr):
		return http.StatusBadGateway, perr.Message
	case errors.Is(err, availability.ErrProviderUnavailable), errors.Is(err, availability.ErrWriteFailed):
		h.logger.Warn("calendar write failed", "err", err)
		return http.StatusBadGateway, "Google Calendar request failed"
	}
	h.logger.Error("lesson request failed", "err", err)
	return http.StatusInternalServerError, "internal error"
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
