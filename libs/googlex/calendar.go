package googlex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const (
	DefaultCalendarID = "primary"
	studentIDKey      = "studentId"
)

var ErrEventNotFound = errors.New("calendar event not found")

type CalendarInfo struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary"`
	TimeZone string `json:"time_zone,omitempty"`
}

// Calendar wraps a Calendar v3 service for one user and one target calendar.
type Calendar struct {
	svc        *calendar.Service
	calendarID string
	logger     *slog.Logger
}

func NewCalendar(svc *calendar.Service, calendarID string, logger *slog.Logger) *Calendar {
	if strings.TrimSpace(calendarID) == "" {
		calendarID = DefaultCalendarID
	}
	return &Calendar{svc: svc, calendarID: calendarID, logger: logger}
}

func (c *Calendar) ID() string {
	return c.calendarID
}

func (c *Calendar) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var out []CalendarInfo
	err := c.svc.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, entry := range page.Items {
			out = append(out, CalendarInfo{
				ID:       entry.Id,
				Summary:  entry.Summary,
				Primary:  entry.Primary,
				TimeZone: entry.TimeZone,
			})
		}
		return nil
	})
	return out, err
}

// CalendarSummary returns the display name of the bound calendar.
func (c *Calendar) CalendarSummary(ctx context.Context) (string, error) {
	cal, err := c.svc.Calendars.Get(c.calendarID).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return cal.Summary, nil
}

// BusyIntervals collects timed events from the bound calendar and every other calendar in
// the user's list. Any calendar that cannot be read fails the whole call.
func (c *Calendar) BusyIntervals(ctx context.Context, window availability.Interval) ([]availability.Interval, error) {
	cals, err := c.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	ids := []string{c.calendarID}
	for _, cal := range cals {
		if c.isBound(cal) {
			continue
		}
		ids = append(ids, cal.ID)
	}

	var busy []availability.Interval
	for _, id := range ids {
		events, err := c.listEvents(ctx, id, window)
		if err != nil {
			c.logger.Warn("calendar read failed", "calendar_id", id, "err", err)
			return nil, fmt.Errorf("read calendar %s: %w", id, err)
		}
		for _, ev := range events {
			if ev.AllDay {
				continue
			}
			busy = append(busy, ev.Interval())
		}
	}
	return availability.Merge(busy), nil
}

func (c *Calendar) isBound(cal CalendarInfo) bool {
	return cal.ID == c.calendarID || (c.calendarID == DefaultCalendarID && cal.Primary)
}

// ListEvents returns the single events of the bound calendar overlapping window,
// ordered by start time.
func (c *Calendar) ListEvents(ctx context.Context, window availability.Interval) ([]availability.CalendarEvent, error) {
	return c.listEvents(ctx, c.calendarID, window)
}

func (c *Calendar) listEvents(ctx context.Context, calendarID string, window availability.Interval) ([]availability.CalendarEvent, error) {
	call := c.svc.Events.List(calendarID).
		TimeMin(queryTime(window.Start, false)).
		TimeMax(queryTime(window.End, true)).
		SingleEvents(true).
		OrderBy("startTime")

	var out []availability.CalendarEvent
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			if ev, ok := EventFromAPI(item); ok {
				out = append(out, ev)
			}
		}
		return nil
	})
	return out, err
}

// queryTime formats a list bound for the API, which ignores sub-second precision. An
// upper bound is rounded up so events starting within its last second stay in range.
func queryTime(t time.Time, upper bool) string {
	t = t.UTC()
	if whole := t.Truncate(time.Second); upper && !whole.Equal(t) {
		t = whole.Add(time.Second)
	} else {
		t = whole
	}
	return t.Format(time.RFC3339)
}

func (c *Calendar) GetEvent(ctx context.Context, ref availability.EventRef) (availability.CalendarEvent, error) {
	item, err := c.svc.Events.Get(c.calendarID, string(ref)).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return availability.CalendarEvent{}, ErrEventNotFound
		}
		return availability.CalendarEvent{}, err
	}
	ev, _ := EventFromAPI(item)
	return ev, nil
}

func (c *Calendar) InsertEvent(ctx context.Context, slot availability.Interval, meta availability.EventMetadata) (availability.EventRef, error) {
	item, err := c.svc.Events.Insert(c.calendarID, EventToAPI(slot, meta)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: %v", availability.ErrWriteFailed, err)
	}
	return availability.EventRef(item.Id), nil
}

// DeleteEvent treats an already deleted event as success.
func (c *Calendar) DeleteEvent(ctx context.Context, ref availability.EventRef) error {
	err := c.svc.Events.Delete(c.calendarID, string(ref)).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: %v", availability.ErrWriteFailed, err)
	}
	return nil
}

// EventFromAPI converts a Google event. ok is false when the event has no usable start
// or end.
func EventFromAPI(item *calendar.Event) (availability.CalendarEvent, bool) {
	if item == nil || item.Start == nil || item.End == nil {
		return availability.CalendarEvent{}, false
	}
	ev := availability.CalendarEvent{
		Ref:         availability.EventRef(item.Id),
		Summary:     item.Summary,
		Description: item.Description,
	}
	if item.ExtendedProperties != nil {
		ev.StudentID = item.ExtendedProperties.Private[studentIDKey]
	}

	switch {
	case item.Start.DateTime != "" && item.End.DateTime != "":
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return availability.CalendarEvent{}, false
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return availability.CalendarEvent{}, false
		}
		ev.Start, ev.End = start, end
	case item.Start.Date != "" && item.End.Date != "":
		start, err := time.Parse(time.DateOnly, item.Start.Date)
		if err != nil {
			return availability.CalendarEvent{}, false
		}
		end, err := time.Parse(time.DateOnly, item.End.Date)
		if err != nil {
			return availability.CalendarEvent{}, false
		}
		ev.Start, ev.End, ev.AllDay = start, end, true
	default:
		return availability.CalendarEvent{}, false
	}
	return ev, true
}

func EventToAPI(slot availability.Interval, meta availability.EventMetadata) *calendar.Event {
	item := &calendar.Event{
		Summary:     meta.Summary,
		Description: meta.Description,
		Start:       &calendar.EventDateTime{DateTime: slot.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: slot.End.Format(time.RFC3339)},
	}
	if meta.StudentID != "" {
		item.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{studentIDKey: meta.StudentID},
		}
	}
	for _, email := range meta.Attendees {
		if email = strings.TrimSpace(email); email != "" {
			item.Attendees = append(item.Attendees, &calendar.EventAttendee{Email: email})
		}
	}
	return item
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}
