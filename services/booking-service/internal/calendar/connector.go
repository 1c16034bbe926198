// Package calendar connects teachers to their Google Calendar through stored OAuth
// tokens.
package calendar

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

const (
	NotConnectedMessage = "Google Calendar not connected for this teacher."
	unavailableMessage  = "Could not read the teacher's Google Calendar. Please try again later."
)

// ErrEventNotFound is returned when the referenced event no longer exists.
var ErrEventNotFound = googlex.ErrEventNotFound

// API is the part of googlex.Calendar the connector uses.
type API interface {
	ID() string
	ListCalendars(ctx context.Context) ([]googlex.CalendarInfo, error)
	BusyIntervals(ctx context.Context, window availability.Interval) ([]availability.Interval, error)
	ListEvents(ctx context.Context, window availability.Interval) ([]availability.CalendarEvent, error)
	GetEvent(ctx context.Context, ref availability.EventRef) (availability.CalendarEvent, error)
	InsertEvent(ctx context.Context, slot availability.Interval, meta availability.EventMetadata) (availability.EventRef, error)
	DeleteEvent(ctx context.Context, ref availability.EventRef) error
}

// Opener returns a calendar client for a user and target calendar.
type Opener func(ctx context.Context, userID, calendarID string) (API, error)

func GoogleOpener(client *googlex.Client) Opener {
	return func(ctx context.Context, userID, calendarID string) (API, error) {
		cal, err := client.Calendar(ctx, userID, calendarID)
		if err != nil {
			return nil, err
		}
		return cal, nil
	}
}

type TeacherLookup interface {
	TeacherByID(ctx context.Context, id string) (model.Teacher, error)
}

// Connector resolves a TeacherRef (the teacher's user id) to their selected calendar.
type Connector struct {
	open     Opener
	teachers TeacherLookup
}

func NewConnector(open Opener, teachers TeacherLookup) *Connector {
	return &Connector{open: open, teachers: teachers}
}

func (c *Connector) calendar(ctx context.Context, teacher availability.TeacherRef) (API, error) {
	t, err := c.teachers.TeacherByID(ctx, string(teacher))
	if err != nil {
		return nil, err
	}
	if !t.GoogleConnected {
		return nil, &availability.ProviderError{Message: NotConnectedMessage, Err: googlex.ErrNotConnected}
	}
	api, err := c.open(ctx, t.ID, t.CalendarID)
	if err != nil {
		if errors.Is(err, googlex.ErrNotConnected) {
			return nil, &availability.ProviderError{Message: NotConnectedMessage, Err: err}
		}
		return nil, &availability.ProviderError{Message: unavailableMessage, Err: err}
	}
	return api, nil
}

func (c *Connector) BusyIntervals(ctx context.Context, teacher availability.TeacherRef, window availability.Interval) ([]availability.Interval, error) {
	api, err := c.calendar(ctx, teacher)
	if err != nil {
		return nil, err
	}
	busy, err := api.BusyIntervals(ctx, window)
	if err != nil {
		return nil, &availability.ProviderError{Message: unavailableMessage, Err: err}
	}
	return busy, nil
}

func (c *Connector) CreateEvent(ctx context.Context, teacher availability.TeacherRef, slot availability.Interval, meta availability.EventMetadata) (availability.EventRef, error) {
	api, err := c.calendar(ctx, teacher)
	if err != nil {
		return "", err
	}
	return api.InsertEvent(ctx, slot, meta)
}

func (c *Connector) DeleteEvent(ctx context.Context, teacher availability.TeacherRef, ref availability.EventRef) error {
	api, err := c.calendar(ctx, teacher)
	if err != nil {
		return err
	}
	return api.DeleteEvent(ctx, ref)
}

func (c *Connector) Event(ctx context.Context, teacher availability.TeacherRef, ref availability.EventRef) (availability.CalendarEvent, error) {
	api, err := c.calendar(ctx, teacher)
	if err != nil {
		return availability.CalendarEvent{}, err
	}
	ev, err := api.GetEvent(ctx, ref)
	if err != nil && !errors.Is(err, ErrEventNotFound) {
		return availability.CalendarEvent{}, &availability.ProviderError{Message: unavailableMessage, Err: err}
	}
	return ev, err
}

func (c *Connector) Events(ctx context.Context, teacher availability.TeacherRef, window availability.Interval) ([]availability.CalendarEvent, error) {
	api, err := c.calendar(ctx, teacher)
	if err != nil {
		return nil, err
	}
	events, err := api.ListEvents(ctx, window)
	if err != nil {
		return nil, &availability.ProviderError{Message: unavailableMessage, Err: err}
	}
	return events, nil
}

// Calendars lists the teacher's calendars and reports which one bookings go to.
func (c *Connector) Calendars(ctx context.Context, teacher availability.TeacherRef) ([]googlex.CalendarInfo, string, error) {
	api, err := c.calendar(ctx, teacher)
	if err != nil {
		return nil, "", err
	}
	cals, err := api.ListCalendars(ctx)
	if err != nil {
		return nil, "", &availability.ProviderError{Message: unavailableMessage, Err: err}
	}
	return cals, api.ID(), nil
}

// HasCalendar reports whether calendarID is one of the teacher's calendars.
func (c *Connector) HasCalendar(ctx context.Context, teacher availability.TeacherRef, calendarID string) (bool, error) {
	cals, _, err := c.Calendars(ctx, teacher)
	if err != nil {
		return false, err
	}
	for _, cal := range cals {
		if cal.ID == calendarID || (calendarID == googlex.DefaultCalendarID && cal.Primary) {
			return true, nil
		}
	}
	return false, nil
}

var (
	_ availability.BusyIntervalSource = (*Connector)(nil)
	_ availability.EventWriter        = (*Connector)(nil)
)
