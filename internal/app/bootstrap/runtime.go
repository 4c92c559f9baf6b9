package bootstrap

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

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/fieldcapture/internal/adapters/cache"
	eventadapter "github.com/viralforge/fieldcapture/internal/adapters/events"
	httpadapter "github.com/viralforge/fieldcapture/internal/adapters/http"
	"github.com/viralforge/fieldcapture/internal/adapters/memory"
	"github.com/viralforge/fieldcapture/internal/adapters/postgres"
	"github.com/viralforge/fieldcapture/internal/adapters/security"
	"github.com/viralforge/fieldcapture/internal/application"
	"github.com/viralforge/fieldcapture/internal/ports"
)

// Runtime owns the backend servers and their dependencies.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	health     *health.Server
	cleanups   []func()
}

type storage struct {
	users    ports.UserRepository
	blocks   ports.BlockRepository
	sessions ports.SessionRepository
	ready    func(context.Context) error
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping field capture api",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"storage_driver", cfg.StorageDriver,
		"timezone", cfg.Location.String(),
	)

	rt := &Runtime{cfg: cfg, logger: logger}
	store, err := rt.openStorage(ctx)
	if err != nil {
		rt.cleanup()
		return nil, err
	}

	var blockCache ports.BlockCache
	if cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			rt.cleanup()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.cleanups = append(rt.cleanups, func() { _ = redisClient.Close() })
		blockCache = cacheadapter.NewRedisBlockCache(redisClient)
	}

	var publisher ports.EventPublisher = eventadapter.NewLoggingPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopics)
		if err != nil {
			rt.cleanup()
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		rt.cleanups = append(rt.cleanups, func() { _ = kafkaPublisher.Close() })
		publisher = kafkaPublisher
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:   cfg.ServiceID,
			Location:      cfg.Location,
			Capture:       cfg.Capture,
			BlocksTTL:     cfg.BlocksTTL,
			MaxSampleRows: cfg.MaxSampleRows,
		},
		Users:     store.users,
		Blocks:    store.blocks,
		Sessions:  store.sessions,
		Cache:     blockCache,
		Publisher: publisher,
		Hasher:    security.NewBcryptHasher(cfg.BcryptCost),
	})
	if err := svc.SeedBlocks(ctx, cfg.SeedBlocks); err != nil {
		rt.cleanup()
		return nil, err
	}
	if err := svc.SeedUsers(ctx, cfg.SeedUsers); err != nil {
		rt.cleanup()
		return nil, err
	}

	handler := httpadapter.NewHandler(svc, httpadapter.WithReadiness(store.ready))
	rt.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rt.grpcServer = grpc.NewServer()
	rt.health = health.NewServer()
	healthpb.RegisterHealthServer(rt.grpcServer, rt.health)
	rt.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	rt.grpcLis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		rt.cleanup()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}
	return rt, nil
}

func (r *Runtime) openStorage(ctx context.Context) (storage, error) {
	if r.cfg.StorageDriver == StorageMemory {
		r.logger.Warn("using in-memory storage; sessions are lost on restart")
		repos := memory.NewRepositories()
		return storage{
			users:    repos.Users,
			blocks:   repos.Blocks,
			sessions: repos.Sessions,
			ready:    func(context.Context) error { return nil },
		}, nil
	}

	db, err := postgres.Connect(ctx, r.cfg.DatabaseURL, r.cfg.MaxDBConns)
	if err != nil {
		return storage{}, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return storage{}, fmt.Errorf("gorm sql db: %w", err)
	}
	r.cleanups = append(r.cleanups, func() { _ = sqlDB.Close() })
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return storage{}, fmt.Errorf("run migrations: %w", err)
	}
	repos := postgres.NewRepositories(db)
	return storage{
		users:    repos.Users,
		blocks:   repos.Blocks,
		sessions: repos.Sessions,
		ready:    func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}, nil
}

func (r *Runtime) cleanup() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

// RunAPI serves HTTP and gRPC health until ctx ends or a server fails.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	r.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanup()
	return runErr
}
