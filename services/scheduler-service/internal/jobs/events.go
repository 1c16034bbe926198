package jobs

import (
	"context"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/services/scheduler-service/internal/model"
)

// EventSource lists the events of a teacher's selected calendar.
type EventSource interface {
	Events(ctx context.Context, teacher model.Teacher, window availability.Interval) ([]availability.CalendarEvent, error)
}

type GoogleEvents struct {
	client *googlex.Client
}

func NewGoogleEvents(client *googlex.Client) *GoogleEvents {
	return &GoogleEvents{client: client}
}

func (g *GoogleEvents) Events(ctx context.Context, teacher model.Teacher, window availability.Interval) ([]availability.CalendarEvent, error) {
	cal, err := g.client.Calendar(ctx, teacher.ID, teacher.CalendarID)
	if err != nil {
		return nil, err
	}
	return cal.ListEvents(ctx, window)
}
