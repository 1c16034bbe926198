package lessons

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/notify"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

const (
	longLayout  = "Monday, January 2 at 3:04 PM"
	shortLayout = "3:04 PM"
)

func teacherLocation(t model.Teacher) *time.Location {
	p, err := t.Profile()
	if err != nil {
		p = availability.DefaultProfile()
	}
	loc, err := p.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

func officeRecipient(t model.Teacher) (string, []string) {
	if t.OfficeEmail == "" {
		return t.Email, nil
	}
	return t.OfficeEmail, []string{t.Email}
}

func bookingConfirmation(t model.Teacher, s model.Student, slot availability.Interval) availability.Message {
	loc := teacherLocation(t)
	to, cc := officeRecipient(t)
	return availability.Message{
		Kind:    notify.KindBookingConfirmation,
		To:      to,
		Cc:      cc,
		Subject: fmt.Sprintf("New Lesson Booked: %s", s.FullName()),
		Body: fmt.Sprintf("Hello,\n\n%s has booked a lesson.\n\nScheduled Time: %s to %s\n\nStudent Email: %s\n\nBest,\n%s",
			s.FullName(),
			slot.Start.In(loc).Format(longLayout),
			slot.End.In(loc).Format(shortLayout),
			s.Email,
			t.FirstName,
		),
		SenderUserID: t.ID,
		TeacherID:    t.ID,
	}
}

func cancellationNotice(t model.Teacher, s model.Student, slot availability.Interval) availability.Message {
	loc := teacherLocation(t)
	to, cc := officeRecipient(t)
	return availability.Message{
		Kind:    notify.KindCancellation,
		To:      to,
		Cc:      cc,
		Subject: fmt.Sprintf("Lesson Cancelled: %s", s.FullName()),
		Body: fmt.Sprintf("Hello,\n\n%s has cancelled the lesson scheduled for %s to %s.\n\nStudent Email: %s\n\nBest,\n%s",
			s.FullName(),
			slot.Start.In(loc).Format(longLayout),
			slot.End.In(loc).Format(shortLayout),
			s.Email,
			t.FirstName,
		),
		SenderUserID: t.ID,
		TeacherID:    t.ID,
	}
}
