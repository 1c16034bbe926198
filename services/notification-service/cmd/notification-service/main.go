package main

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/libs/inbox"
	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/md-rashed-zaman/lessonbook/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/lessonbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/lessonbook/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	var sender email.Sender = email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@lessonbook.local"),
	)
	provider := strings.ToLower(config.String("EMAIL_PROVIDER", email.ProviderSMTP))
	switch provider {
	case email.ProviderGmail:
		google := googlex.NewClient(googlex.OAuthConfigFromEnv(), googlex.NewPGTokenStore(pool), logger)
		sender = email.NewGmailSender(email.GoogleMailboxes(google), sender, logger)
	case email.ProviderSMTP:
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using smtp", "provider", provider)
	}
	logger.Info("email provider configured", "provider", provider)

	processor := delivery.NewProcessor(sender, storage.NewRepository(pool, outboxRepo), logger, config.String("NOTIFICATION_FAIL_SUFFIX", ""))
	consumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", outbox.TopicEmailRequested),
	}, processor.Handle)
	go consumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	runtime.Serve(ctx, logger, runtime.NewServer(port, handler))
}
