package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	clinicTZ, err := config.Location("CLINIC_TIMEZONE")
	if err != nil {
		panic(err)
	}
	verifier, err := auth.VerifierFromEnv()
	if err != nil {
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.OpenWithConfig(ctx, dbURL, db.PoolConfig{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		applied, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", len(applied), "names", applied)
	}

	outboxRepo := outbox.NewRepository()
	repo := storage.NewAppointmentRepository(pool, outboxRepo)
	svc := booking.NewService(repo, clinicTZ, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	rateLimit, redisCheck := newRateLimit(logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
		{Name: "redis", Check: redisCheck},
	}
	if addr := config.String("REMINDER_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.NewClient(addr, nil)
		if err != nil {
			logger.Error("reminder-service client init failed", "err", err)
		} else {
			defer conn.Close()
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "reminder-service", Check: grpcx.HealthReadyCheck(conn, "")})
		}
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	if config.Bool("METRICS_ENABLED", true) {
		mux.Handle("GET /metrics", otelx.MetricsHandler())
	}
	handlers.NewAppointmentHandler(svc, logger).Register(mux, auth.RequireAuth(verifier))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
