package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"clinicsched/backend/internal/auth"
	"clinicsched/backend/internal/config"
	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/appointments"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/store/cache"
	"clinicsched/backend/internal/store/memstore"
	"clinicsched/backend/internal/store/postgres"
	grpcTransport "clinicsched/backend/internal/transport/grpc"
	"clinicsched/backend/internal/transport/rest"
)

// defaultCategories mirrors the rows seeded by the first migration so the
// memory driver screens availability blocks the same way.
var defaultCategories = []domain.Category{
	{ID: 1, Name: "Office Visit"},
	{ID: 2, Name: "Established Patient"},
	{ID: 3, Name: "New Patient"},
	{ID: 4, Name: "Out Of Office", IsAvailability: true},
	{ID: 5, Name: "Vacation", IsAvailability: true},
	{ID: 6, Name: "Lunch", IsAvailability: true},
	{ID: 7, Name: "Staff Meeting", IsAvailability: true},
	{ID: 8, Name: "Supervision", IsAvailability: true},
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			return runServer(cfg)
		},
	}
}

func runServer(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	repo, categories, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := appointments.NewService(repo, categories,
		appointments.WithMetrics(appointments.NewMetrics(reg)),
		appointments.WithLogger(log),
	)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.RequestTimeoutInterceptor(cfg.GRPCRequestTimeout),
			grpcTransport.AuthInterceptor(verifier, log),
		),
	)
	grpcTransport.RegisterSchedulingServer(grpcServer, grpcTransport.NewAppointmentsServer(svc, log))

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: rest.NewRouter(rest.Config{
			Service:  svc,
			Verifier: verifier,
			Ready:    svc.Ready,
			Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			Logger:   log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", cfg.GRPCAddr(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("http_addr", cfg.HTTPAddr))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
		log.Error("server stopped with error", slog.Any("err", runErr))
	}
	shutdown(log, grpcServer, httpServer, cfg.ShutdownTimeout)
	return runErr
}

// openStore returns the appointment repository and category reader for the
// configured driver, plus a function releasing their resources.
func openStore(cfg config.Config, log *slog.Logger) (store.AppointmentRepository, store.CategoryReader, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on exit")
		st := memstore.New()
		for _, c := range defaultCategories {
			st.AddCategory(c)
		}
		return st, st, func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, nil, nil, fmt.Errorf("database connection: %w", err)
	}
	db.AddQueryHook(&postgres.SlowQueryHook{Log: log.With(slog.String("component", "postgres")), Threshold: cfg.DBSlowQuery})

	closers := []func(){func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var categories store.CategoryReader = postgres.NewCategoryRepo(db)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("redis.url: %w", err)
		}
		client := redis.NewClient(opts)
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		})
		categories = cache.NewCategoryCache(categories, client, cfg.CategoryCacheTTL, log)
		log.Info("category cache enabled", slog.String("redis_addr", opts.Addr), slog.Duration("ttl", cfg.CategoryCacheTTL))
	}

	return postgres.NewAppointmentRepo(db), categories, closeAll, nil
}

func shutdown(log *slog.Logger, g *grpc.Server, h *http.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := h.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = h.Close()
	}

	done := make(chan struct{})
	go func() {
		g.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		g.Stop()
	}
}
