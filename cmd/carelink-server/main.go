package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"carelink/backend/internal/booking"
	"carelink/backend/internal/config"
	"carelink/backend/internal/events"
	"carelink/backend/internal/notify"
	"carelink/backend/internal/schedule"
	"carelink/backend/internal/service/appointments"
	"carelink/backend/internal/store"
	"carelink/backend/internal/store/memory"
	"carelink/backend/internal/store/postgres"
	"carelink/backend/internal/store/redis"
	"carelink/backend/internal/store/sqlite"
	"carelink/backend/internal/sweeper"
	grpcTransport "carelink/backend/internal/transport/grpc"
	"carelink/backend/internal/transport/rest"
	"carelink/backend/internal/transport/ws"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "carelink-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "carelink-server"),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, log, cfg)
	stop()
	if err != nil {
		log.Error("server exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

// run wires the stores, engine and transports, serves until ctx is done or a
// server fails, then shuts everything down.
func run(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("log_level", cfg.LogLevel),
	)

	conflictMode, err := appointments.ParseConflictMode(cfg.ConflictMode)
	if err != nil {
		return fmt.Errorf("conflict mode: %w", err)
	}

	backend, err := openBackend(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("store close failed", slog.Any("err", err))
		}
	}()

	ledger := schedule.NewLedger(backend, cfg.TimeZone)
	repo := booking.NewRepository(backend, ledger, log)
	notifier := notify.New(log)
	svc := appointments.NewService(repo, notifier, appointments.Policy{
		ResponseWindowDays: cfg.ResponseWindowDays,
		CancelWindowDays:   cfg.CancelWindowDays,
		ConflictMode:       conflictMode,
		Location:           cfg.TimeZone,
	}, appointments.WithLogger(log))

	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		sub := notifier.Subscribe(publisher.Handle)
		defer func() {
			notifier.Unsubscribe(sub)
			if err := publisher.Close(); err != nil {
				log.Warn("kafka publisher close failed", slog.Any("err", err))
			}
		}()
		log.Info("publishing status changes to kafka", slog.String("topic", cfg.KafkaTopic))
	} else {
		log.Warn("kafka publisher disabled (no brokers configured)")
	}

	hub := ws.NewHub(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)
	notifier.Subscribe(hub.HandleStatusChange)

	sweep, err := sweeper.New(svc, cfg.SweeperSchedule, log)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	sweep.Start()
	defer sweep.Stop()

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterBookingServiceServer(grpcServer, grpcTransport.NewBookingsServer(svc, svc, ledger, log))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.BookingServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rest.NewRouter(backend, ledger, hub, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr), slog.String("http_addr", cfg.HTTPAddr))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr = err
		}
	}

	healthServer.Shutdown()
	shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
	shutdown(log, grpcServer, cfg.ShutdownTimeout)
	return serveErr
}

func openBackend(ctx context.Context, log *slog.Logger, cfg config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = postgres.Close(db)
			return nil, err
		}
		return postgres.NewBackend(db), nil
	case config.BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redis.NewBackend(rdb, cfg.RedisKeyPrefix), nil
	case config.BackendSQLite:
		log.Info("opening sqlite store", slog.String("path", cfg.SQLitePath))
		return sqlite.Open(cfg.SQLitePath)
	default:
		log.Warn("using in-memory store; bookings are lost on restart")
		return memory.New(), nil
	}
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdownHTTP(log *slog.Logger, s *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http shutdown failed", slog.Any("err", err))
		return
	}
	log.Info("http server stopped")
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
