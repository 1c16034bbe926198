package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
)

// Task types.
const (
	TypeReminderScan = "lessons:reminders"
	TypeWeeklyDigest = "lessons:weekly_digest"
)

type Runner interface {
	Run(ctx context.Context) (int, error)
}

func NewServeMux(reminders, digest Runner, logger *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReminderScan, runTask(reminders, logger))
	mux.HandleFunc(TypeWeeklyDigest, runTask(digest, logger))
	return mux
}

func runTask(job Runner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		ctx, span := otelx.StartSpan(ctx, "scheduler", task.Type())
		defer span.End()

		started := time.Now()
		sent, err := job.Run(ctx)
		if err != nil {
			span.RecordError(err)
			logger.Error("task failed", "task", task.Type(), "err", err)
			return err
		}
		logger.Info("task finished", "task", task.Type(), "sent", sent, "duration_ms", time.Since(started).Milliseconds())
		return nil
	}
}

type Schedule struct {
	ReminderSpec string
	DigestSpec   string
}

// RegisterPeriodic enqueues both scans on their cron specs. Tasks are unique per run so
// several scheduler replicas do not double the work, and are not retried: the next tick
// or week picks up whatever was missed.
func RegisterPeriodic(s *asynq.Scheduler, sched Schedule) error {
	if _, err := s.Register(sched.ReminderSpec, asynq.NewTask(TypeReminderScan, nil),
		asynq.MaxRetry(0), asynq.Unique(50*time.Second), asynq.Timeout(5*time.Minute)); err != nil {
		return fmt.Errorf("register %s: %w", TypeReminderScan, err)
	}
	if _, err := s.Register(sched.DigestSpec, asynq.NewTask(TypeWeeklyDigest, nil),
		asynq.MaxRetry(0), asynq.Unique(time.Hour), asynq.Timeout(30*time.Minute)); err != nil {
		return fmt.Errorf("register %s: %w", TypeWeeklyDigest, err)
	}
	return nil
}

// SlogLogger adapts slog to asynq.Logger.
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) Debug(args ...interface{}) { l.Logger.Debug(fmt.Sprint(args...)) }
func (l SlogLogger) Info(args ...interface{})  { l.Logger.Info(fmt.Sprint(args...)) }
func (l SlogLogger) Warn(args ...interface{})  { l.Logger.Warn(fmt.Sprint(args...)) }
func (l SlogLogger) Error(args ...interface{}) { l.Logger.Error(fmt.Sprint(args...)) }

func (l SlogLogger) Fatal(args ...interface{}) {
	l.Logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

var _ asynq.Logger = SlogLogger{}
