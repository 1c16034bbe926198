package main

import (
	"context"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/libs/redisx"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/md-rashed-zaman/lessonbook/migrations"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/handlers"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/oauthstate"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/option"
)

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
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

	if config.Bool("MIGRATE_ON_START", false) {
		migrator, err := db.NewMigrator(pool, migrations.FS, migrations.Dir, logger)
		if err != nil {
			panic(err)
		}
		if err := migrator.Up(ctx); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50, 1),
	})
	go publisher.Run(ctx)

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	var rdb *redis.Client
	var nonces oauthstate.Store = oauthstate.NewMemoryStore()
	if opts := redisx.OptionsFromEnv(); opts.Enabled() {
		rdb = opts.Client()
		defer rdb.Close()
		nonces = oauthstate.NewRedisStore(rdb, "")
	} else {
		logger.Warn("REDIS_ADDR not set; oauth nonces kept in memory")
	}

	authHandler := handlers.NewAuthHandler(
		signer,
		storage.NewUserRepository(pool, outboxRepo),
		sessions.NewRefreshRepository(pool),
		audit.NewRepository(pool),
		handlers.Config{
			AccessTTL:   config.Duration("ACCESS_TOKEN_TTL", time.Hour),
			RefreshTTL:  time.Duration(config.Int("REFRESH_TTL_HOURS", 720, 1)) * time.Hour,
			StateSecret: config.String("OAUTH_STATE_SECRET", config.String("JWT_SECRET", "dev-secret")),
			StateTTL:    config.Duration("OAUTH_STATE_TTL", 10*time.Minute),
			FrontendURL: config.String("FRONTEND_URL", ""),
		},
		logger,
	)

	oauthCfg := googlex.OAuthConfigFromEnv()
	if oauthCfg == nil {
		logger.Warn("GOOGLE_CLIENT_ID not set; google login disabled")
	}
	tokenStore := googlex.NewPGTokenStore(pool)
	authHandler.
		WithGoogle(handlers.NewGoogleLogin(oauthCfg), tokenStore, nonces).
		WithCalendars(handlers.NewCalendarSummaries(googlex.NewClient(oauthCfg, tokenStore, logger)))

	if verifier := firebaseAuth(ctx, logger); verifier != nil {
		authHandler.WithFirebase(verifier)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
	)
	authHandler.Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	runtime.Serve(ctx, logger, runtime.NewServer(port, handler))
}

// firebaseAuth returns nil unless FIREBASE_CREDENTIALS_FILE or FIREBASE_PROJECT_ID is set.
func firebaseAuth(ctx context.Context, logger *slog.Logger) handlers.IDTokenVerifier {
	credFile := config.String("FIREBASE_CREDENTIALS_FILE", "")
	projectID := config.String("FIREBASE_PROJECT_ID", "")
	if credFile == "" && projectID == "" {
		logger.Warn("firebase not configured; firebase login disabled")
		return nil
	}
	var opts []option.ClientOption
	if credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		logger.Warn("firebase init failed; firebase login disabled", "err", err)
		return nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		logger.Warn("firebase auth client failed; firebase login disabled", "err", err)
		return nil
	}
	logger.Info("firebase login enabled", "project_id", projectID)
	return client
}

func buildSigner() (handlers.TokenSigner, error) {
	privatePEM := config.String("JWT_PRIVATE_KEY_PEM", "")
	privatePEMS := config.String("JWT_PRIVATE_KEYS_PEM", "")

	if privatePEMS != "" {
		keySet, err := handlers.ParseRS256KeySet(privatePEMS)
		if err != nil {
			return nil, err
		}
		signer, err := handlers.NewRotatingRS256Signer(keySet, config.String("JWT_ACTIVE_KID", ""))
		if err != nil {
			return nil, err
		}
		signer.SetRotateKey(config.String("JWT_ROTATE_KEY", ""))
		return signer, nil
	}
	if privatePEM != "" {
		signer, err := handlers.NewRS256Signer([]byte(privatePEM), config.String("JWT_KID", ""))
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	return handlers.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}
