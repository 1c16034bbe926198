package main

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	"github.com/md-rashed-zaman/lessonbook/libs/notify"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/libs/redisx"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/md-rashed-zaman/lessonbook/services/scheduler-service/internal/jobs"
	"github.com/md-rashed-zaman/lessonbook/services/scheduler-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	shutdownTracing := otelx.Bootstrap(ctx, logger, service)
	defer shutdownTracing()

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	redisOpts := redisx.OptionsFromEnv()
	if !redisOpts.Enabled() {
		panic("REDIS_ADDR is required")
	}
	loc, err := time.LoadLocation(config.String("SCHEDULER_TIMEZONE", availability.DefaultTimezone))
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL,
		db.WithApplicationName(service),
		db.WithStatementTimeout(config.Duration("DB_STATEMENT_TIMEOUT", 10*time.Second)),
	)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb := redisOpts.Client()
	defer func() { _ = rdb.Close() }()

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50, 1),
	})
	go publisher.Run(ctx)

	repo := storage.NewRepository(pool)
	events := jobs.NewGoogleEvents(googlex.NewClient(googlex.OAuthConfigFromEnv(), googlex.NewPGTokenStore(pool), logger))
	notifier := notify.NewOutboxNotifier(outboxRepo)
	window := availability.ReminderWindow{
		Lookahead: config.Duration("REMINDER_LOOKAHEAD", availability.DefaultReminderLookahead),
		Tolerance: config.Duration("REMINDER_TOLERANCE", availability.DefaultReminderTolerance),
	}
	reminders := jobs.NewReminders(repo, events, notifier, window, loc, logger)
	digest := jobs.NewDigest(repo, events, notifier, loc, logger)

	worker := asynq.NewServer(redisOpts.Asynq(), asynq.Config{
		Concurrency: config.Int("SCHEDULER_CONCURRENCY", 2, 1),
		Logger:      jobs.SlogLogger{Logger: logger},
	})
	if err := worker.Start(jobs.NewServeMux(reminders, digest, logger)); err != nil {
		logger.Error("asynq server start failed", "err", err)
		panic(err)
	}
	defer worker.Shutdown()

	scheduler := asynq.NewScheduler(redisOpts.Asynq(), &asynq.SchedulerOpts{
		Location: loc,
		Logger:   jobs.SlogLogger{Logger: logger},
	})
	if err := jobs.RegisterPeriodic(scheduler, jobs.Schedule{
		ReminderSpec: config.String("REMINDER_SCAN_SPEC", "@every 1m"),
		DigestSpec:   config.String("WEEKLY_DIGEST_CRON", "0 17 * * 0"),
	}); err != nil {
		panic(err)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("asynq scheduler start failed", "err", err)
		panic(err)
	}
	defer scheduler.Shutdown()
	logger.Info("periodic jobs scheduled", "timezone", loc.String(), "lookahead", window.Lookahead.String())

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
	runtime.Serve(ctx, logger, runtime.NewServer(port, handler))
}
