package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/services/scheduler-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReminderTeachers lists teachers with a Google token and a selected calendar.
func (r *Repository) ReminderTeachers(ctx context.Context) ([]model.Teacher, error) {
	return r.teachers(ctx, `calendar_id IS NOT NULL AND calendar_id <> ''`)
}

// DigestTeachers lists teachers with a Google token and an office email.
func (r *Repository) DigestTeachers(ctx context.Context) ([]model.Teacher, error) {
	return r.teachers(ctx, `office_email IS NOT NULL AND office_email <> ''`)
}

func (r *Repository) teachers(ctx context.Context, filter string) ([]model.Teacher, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, email, first_name, COALESCE(calendar_slug, ''),
		       COALESCE(calendar_id, ''), COALESCE(office_email, ''), timezone
		FROM users
		WHERE role = 'teacher' AND google_token IS NOT NULL AND `+filter+`
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Teacher
	for rows.Next() {
		var t model.Teacher
		if err := rows.Scan(&t.ID, &t.Email, &t.FirstName, &t.Slug, &t.CalendarID, &t.OfficeEmail, &t.Timezone); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) StudentsOf(ctx context.Context, teacherSlug string) ([]model.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, email, first_name, last_name
		FROM users
		WHERE role = 'student' AND teacher_slug = $1
		ORDER BY created_at
	`, teacherSlug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.Email, &s.FirstName, &s.LastName); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeliverOnce records d and runs send in the same transaction. It returns false without
// calling send when a reminder for the event was already recorded.
func (r *Repository) DeliverOnce(ctx context.Context, d model.Delivery, send func(tx pgx.Tx) error) (bool, error) {
	delivered := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO reminder_deliveries (event_id, teacher_id, student_id, starts_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (event_id) DO NOTHING
		`, d.EventID, d.TeacherID, d.StudentID, d.StartsAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := send(tx); err != nil {
			return err
		}
		delivered = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return delivered, nil
}
