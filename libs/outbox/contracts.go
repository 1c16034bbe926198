package outbox

import "time"

// LessonEvent is the payload of lesson.booked.v1 and lesson.cancelled.v1.
type LessonEvent struct {
	EventID    string    `json:"event_id"`
	TeacherID  string    `json:"teacher_id"`
	StudentID  string    `json:"student_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NotificationResult is the payload of notification.sent.v1 and notification.failed.v1.
type NotificationResult struct {
	NotificationID string    `json:"notification_id"`
	Kind           string    `json:"kind"`
	TeacherID      string    `json:"teacher_id,omitempty"`
	Recipient      string    `json:"recipient"`
	Provider       string    `json:"provider"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// UserRegistered is the payload of auth.user.registered.v1.
type UserRegistered struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Method     string    `json:"method"`
	OccurredAt time.Time `json:"occurred_at"`
}
