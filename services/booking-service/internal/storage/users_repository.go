package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

// UserRepository reads teacher and student records owned by the auth-service.
type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const teacherColumns = `
	id::text, email, first_name, last_name, COALESCE(calendar_slug, ''),
	COALESCE(working_start, ''), COALESCE(working_end, ''), slot_minutes, timezone,
	weekends_excluded, COALESCE(calendar_id, ''), COALESCE(office_email, ''), plan,
	google_token IS NOT NULL
`

func scanTeacher(row pgx.Row) (model.Teacher, error) {
	var t model.Teacher
	err := row.Scan(
		&t.ID,
		&t.Email,
		&t.FirstName,
		&t.LastName,
		&t.Slug,
		&t.WorkingStart,
		&t.WorkingEnd,
		&t.SlotMinutes,
		&t.Timezone,
		&t.WeekendsExcluded,
		&t.CalendarID,
		&t.OfficeEmail,
		&t.Plan,
		&t.GoogleConnected,
	)
	return t, err
}

func (r *UserRepository) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+teacherColumns+`
		FROM users
		WHERE role = 'teacher' AND calendar_slug IS NOT NULL
		ORDER BY first_name, last_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Teacher
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *UserRepository) TeacherBySlug(ctx context.Context, slug string) (model.Teacher, error) {
	return scanTeacher(r.pool.QueryRow(ctx, `
		SELECT `+teacherColumns+`
		FROM users
		WHERE role = 'teacher' AND calendar_slug = $1
	`, slug))
}

func (r *UserRepository) TeacherByID(ctx context.Context, id string) (model.Teacher, error) {
	return scanTeacher(r.pool.QueryRow(ctx, `
		SELECT `+teacherColumns+`
		FROM users
		WHERE role = 'teacher' AND id::text = $1
	`, id))
}

func (r *UserRepository) StudentByID(ctx context.Context, id string) (model.Student, error) {
	var s model.Student
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, email, first_name, last_name, COALESCE(teacher_slug, '')
		FROM users
		WHERE role = 'student' AND id::text = $1
	`, id).Scan(&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.TeacherSlug)
	return s, err
}

func (r *UserRepository) SetCalendarID(ctx context.Context, teacherID, calendarID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET calendar_id = $2, updated_at = now()
		WHERE role = 'teacher' AND id::text = $1
	`, teacherID, calendarID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
