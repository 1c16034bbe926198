package main

import (
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/libs/inbox"
	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/md-rashed-zaman/lessonbook/services/analytics-service/internal/handlers"
	"github.com/md-rashed-zaman/lessonbook/services/analytics-service/internal/metrics"
	"github.com/md-rashed-zaman/lessonbook/services/analytics-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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
	repo := storage.NewRepository(pool)
	recorder := metrics.NewRecorder(repo, logger)
	inboxRepo := inbox.NewRepository(pool)
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")
	for _, topic := range metrics.Topics {
		consumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, recorder.Handle)
		go consumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handlers.NewAnalyticsHandler(repo, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	runtime.Serve(ctx, logger, runtime.NewServer(port, handler))
}
