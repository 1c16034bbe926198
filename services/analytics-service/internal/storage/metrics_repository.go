package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/services/analytics-service/internal/metrics"
)

type DailyMetrics struct {
	Day                 time.Time
	LessonsBooked       int
	LessonsCancelled    int
	NotificationsSent   int
	NotificationsFailed int
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Bump(ctx context.Context, inc metrics.Increment) error {
	column := inc.Counter.Column()
	if column == "" {
		return fmt.Errorf("unknown counter %d", inc.Counter)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lesson_daily_metrics (teacher_id, day, `+column+`)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (teacher_id, day)
		DO UPDATE SET `+column+` = lesson_daily_metrics.`+column+` + 1,
		              updated_at = now()
	`, inc.TeacherID, inc.Day)
	return err
}

// Daily returns teacherID's rows between from and to inclusive, oldest first. Days
// without events are absent.
func (r *Repository) Daily(ctx context.Context, teacherID string, from, to time.Time) ([]DailyMetrics, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, lessons_booked, lessons_cancelled, notifications_sent, notifications_failed
		FROM lesson_daily_metrics
		WHERE teacher_id = $1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day
	`, teacherID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyMetrics
	for rows.Next() {
		var m DailyMetrics
		if err := rows.Scan(&m.Day, &m.LessonsBooked, &m.LessonsCancelled, &m.NotificationsSent, &m.NotificationsFailed); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
