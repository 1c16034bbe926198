package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

type teacherTable map[string]model.Teacher

func (t teacherTable) TeacherByID(ctx context.Context, id string) (model.Teacher, error) {
	teacher, ok := t[id]
	if !ok {
		return model.Teacher{}, errors.New("no rows")
	}
	return teacher, nil
}

type fakeAPI struct {
	id        string
	calendars []googlex.CalendarInfo
	busy      []availability.Interval
	busyErr   error
	getErr    error
}

func (f *fakeAPI) ID() string { return f.id }

func (f *fakeAPI) ListCalendars(ctx context.Context) ([]googlex.CalendarInfo, error) {
	return f.calendars, nil
}

func (f *fakeAPI) BusyIntervals(ctx context.Context, window availability.Interval) ([]availability.Interval, error) {
	return f.busy, f.busyErr
}

func (f *fakeAPI) ListEvents(ctx context.Context, window availability.Interval) ([]availability.CalendarEvent, error) {
	return nil, nil
}

func (f *fakeAPI) GetEvent(ctx context.Context, ref availability.EventRef) (availability.CalendarEvent, error) {
	return availability.CalendarEvent{Ref: ref}, f.getErr
}

func (f *fakeAPI) InsertEvent(ctx context.Context, slot availability.Interval, meta availability.EventMetadata) (availability.EventRef, error) {
	return "evt-new", nil
}

func (f *fakeAPI) DeleteEvent(ctx context.Context, ref availability.EventRef) error {
	return nil
}

func opener(api *fakeAPI, err error) Opener {
	return func(ctx context.Context, userID, calendarID string) (API, error) {
		if err != nil {
			return nil, err
		}
		return api, nil
	}
}

func TestConnector_NotConnected(t *testing.T) {
	c := NewConnector(opener(&fakeAPI{}, nil), teacherTable{"t1": {ID: "t1"}})
	_, err := c.BusyIntervals(context.Background(), "t1", availability.Interval{})
	var perr *availability.ProviderError
	if !errors.As(err, &perr) || perr.Message != NotConnectedMessage {
		t.Fatalf("expected not connected provider error, got %v", err)
	}
	if !errors.Is(err, availability.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestConnector_TokenMissingAtOpen(t *testing.T) {
	c := NewConnector(opener(nil, googlex.ErrNotConnected), teacherTable{"t1": {ID: "t1", GoogleConnected: true}})
	_, err := c.CreateEvent(context.Background(), "t1", availability.Interval{}, availability.EventMetadata{})
	var perr *availability.ProviderError
	if !errors.As(err, &perr) || perr.Message != NotConnectedMessage {
		t.Fatalf("expected not connected provider error, got %v", err)
	}
}

func TestConnector_ReadFailureIsProviderError(t *testing.T) {
	api := &fakeAPI{busyErr: errors.New("503")}
	c := NewConnector(opener(api, nil), teacherTable{"t1": {ID: "t1", GoogleConnected: true}})
	_, err := c.BusyIntervals(context.Background(), "t1", availability.Interval{})
	if !errors.Is(err, availability.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestConnector_ReadFailureWarnsInDayAvailability(t *testing.T) {
	api := &fakeAPI{busyErr: errors.New("read calendar lessons: googleapi: Error 500")}
	c := NewConnector(opener(api, nil), teacherTable{"t1": {ID: "t1", GoogleConnected: true}})
	day, err := availability.ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	got, err := availability.DayAvailability(context.Background(), c, "t1", availability.DefaultProfile(), day)
	if err != nil {
		t.Fatalf("expected degraded result, got %v", err)
	}
	if got.Warning != unavailableMessage {
		t.Fatalf("expected warning %q, got %q", unavailableMessage, got.Warning)
	}
	if len(got.Slots) != 0 {
		t.Fatalf("expected no open slots, got %d", len(got.Slots))
	}
}

func TestConnector_BusyIntervals(t *testing.T) {
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	api := &fakeAPI{busy: []availability.Interval{{Start: start, End: start.Add(time.Hour)}}}
	c := NewConnector(opener(api, nil), teacherTable{"t1": {ID: "t1", GoogleConnected: true}})
	busy, err := c.BusyIntervals(context.Background(), "t1", availability.Interval{})
	if err != nil || len(busy) != 1 {
		t.Fatalf("expected 1 busy interval, got %d (%v)", len(busy), err)
	}
}

func TestConnector_EventNotFoundPassesThrough(t *testing.T) {
	api := &fakeAPI{getErr: googlex.ErrEventNotFound}
	c := NewConnector(opener(api, nil), teacherTable{"t1": {ID: "t1", GoogleConnected: true}})
	_, err := c.Event(context.Background(), "t1", "evt-1")
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if errors.Is(err, availability.ErrProviderUnavailable) {
		t.Fatalf("not found must not read as provider failure")
	}
}

func TestConnector_HasCalendar(t *testing.T) {
	api := &fakeAPI{id: "primary", calendars: []googlex.CalendarInfo{
		{ID: "ada@example.com", Primary: true},
		{ID: "lessons@group.calendar.google.com"},
	}}
	c := NewConnector(opener(api, nil), teacherTable{"t1": {ID: "t1", GoogleConnected: true}})
	for id, want := range map[string]bool{
		"lessons@group.calendar.google.com": true,
		"primary":                           true,
		"other@group.calendar.google.com":   false,
	} {
		got, err := c.HasCalendar(context.Background(), "t1", id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", id, want, got)
		}
	}
}
