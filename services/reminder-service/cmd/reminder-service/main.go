package main

import (
	"context"
	"errors"
	"net"
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
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/reminders"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9085")
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
	windows, err := windowsFromEnv()
	if err != nil {
		panic(err)
	}
	// Zero keeps the daily reset at clinic midnight.
	resetEvery, err := config.Duration("REMINDER_RESET_EVERY", 0)
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

	dedup, ledgerCheck, err := newLedger(pool, resetEvery)
	if err != nil {
		panic(err)
	}
	dispatcher, err := newDispatcher()
	if err != nil {
		panic(err)
	}
	appointments := storage.NewAppointmentRepository(pool)

	engine, err := reminders.NewEngine(appointments, dispatcher, dedup, logger, reminders.Config{
		Windows:    windows,
		ResetEvery: resetEvery,
		Location:   clinicTZ,
	})
	if err != nil {
		logger.Error("invalid reminder configuration", "err", err)
		panic(err)
	}
	for _, w := range engine.Windows() {
		logger.Info("reminder window", "label", w.Label, "every", w.Every.String(), "from", w.From.String(), "to", w.To.String())
	}
	// Instances sharing a ledger must agree on this cadence.
	if resetEvery > 0 {
		logger.Info("reminder ledger reset cadence", "every", resetEvery.String())
	} else {
		logger.Info("reminder ledger reset cadence", "every", "daily at midnight", "timezone", clinicTZ.String())
	}
	go engine.Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		statusConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "reminder-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", lifecycle.StatusChangedEvent),
		}, lifecycle.NewHandler(appointments, dispatcher, logger).Handle)
		go statusConsumer.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; status notices disabled")
	}

	grpcServer := grpcx.NewServer(logger)
	grpcServer.SetServing(true, service)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
		runtime.ReadyCheck{Name: "ledger", Check: ledgerCheck},
	)
	if config.Bool("METRICS_ENABLED", true) {
		mux.Handle("GET /metrics", otelx.MetricsHandler())
	}
	handlers.NewReminderHandler(engine, logger).Register(mux, auth.RequireAuth(verifier))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 60), time.Minute).Middleware(),
		httpx.WithBodyLimit(1<<16),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reminder")
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
	grpcServer.SetServing(false, service)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
