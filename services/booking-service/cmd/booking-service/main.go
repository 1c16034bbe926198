package main

import (
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	"github.com/md-rashed-zaman/lessonbook/libs/notify"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/lessons"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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
	pool, err := db.Open(ctx, dbURL,
		db.WithApplicationName(service),
		db.WithStatementTimeout(config.Duration("DB_STATEMENT_TIMEOUT", 10*time.Second)),
	)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50, 1),
	})
	go publisher.Run(ctx)

	oauthCfg := googlex.OAuthConfigFromEnv()
	if oauthCfg == nil {
		logger.Warn("GOOGLE_CLIENT_ID not set; calendars will report as not connected")
	}
	google := googlex.NewClient(oauthCfg, googlex.NewPGTokenStore(pool), logger)

	users := storage.NewUserRepository(pool)
	connector := calendar.NewConnector(calendar.GoogleOpener(google), users)

	policy := availability.BookingPolicy{
		MinLeadTime: time.Duration(config.Int("BOOKING_MIN_LEAD_HOURS", 24, 0)) * time.Hour,
	}
	lessonSvc := lessons.NewService(connector, notify.NewOutboxNotifier(outboxRepo), outboxRepo, policy, logger)
	bookingHandler := handlers.NewBookingHandler(users, connector, lessonSvc, storage.NewIdempotencyRepository(pool), policy, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	bookingHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	runtime.Serve(ctx, logger, runtime.NewServer(port, httpHandler))
}
