package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/careflow/approvals/internal/application/services"
	"github.com/careflow/approvals/internal/config"
	"github.com/careflow/approvals/internal/domain/events"
	"github.com/careflow/approvals/internal/domain/ports"
	"github.com/careflow/approvals/internal/infrastructure/database"
	"github.com/careflow/approvals/internal/infrastructure/directory"
	"github.com/careflow/approvals/internal/infrastructure/notify"
	"github.com/careflow/approvals/internal/infrastructure/persistence"
	"github.com/careflow/approvals/internal/interfaces/rest"
	"github.com/careflow/approvals/internal/metrics"
	"github.com/careflow/approvals/pkg/expression"
	"github.com/careflow/approvals/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server exiting")
}

type stores struct {
	workflows ports.WorkflowStore
	requests  ports.RequestStore
	close     func() error
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("DATABASE_DSN not set, using in-memory stores")
		mem := persistence.NewMemoryStore()
		return &stores{workflows: mem, requests: mem, close: func() error { return nil }}, nil
	}

	conn, err := database.Open(ctx, cfg.DatabaseDSN, database.DefaultPoolConfig)
	if err != nil {
		return nil, err
	}
	if err := persistence.EnsureSchema(ctx, conn.DB()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Info("database connection established")
	return &stores{
		workflows: persistence.NewWorkflowRepository(conn.DB()),
		requests:  persistence.NewRequestRepository(conn.DB()),
		close:     conn.Close,
	}, nil
}

func openDirectory(cfg *config.Config, logger *zap.Logger) (*directory.StaticDirectory, error) {
	if cfg.DirectoryFile == "" {
		logger.Warn("DIRECTORY_FILE not set, role-based steps cannot resolve approvers")
		return directory.NewStaticDirectory(), nil
	}
	return directory.LoadFile(cfg.DirectoryFile)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	users, err := openDirectory(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.WorkflowsFile != "" {
		workflows, err := persistence.LoadWorkflowsFile(cfg.WorkflowsFile)
		if err != nil {
			return err
		}
		if err := persistence.SeedWorkflows(ctx, st.workflows, workflows, time.Now().UTC()); err != nil {
			return err
		}
		logger.Info("workflows seeded", zap.Int("count", len(workflows)))
	}

	// Notification channels
	channels := notify.Fanout{notify.NewLogDispatcher(logger.Named("notify"))}
	var inbox rest.NotificationInbox
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		redisDispatcher := notify.NewRedisDispatcher(client, notify.WithChannel(cfg.RedisChannel))
		channels = append(channels, redisDispatcher)
		inbox = redisDispatcher
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bus := services.NewEventBus(logger.Named("events"))
	for _, t := range []events.EventType{events.RequestApproved, events.RequestRejected} {
		bus.Subscribe(t, auditOutcome(logger.Named("audit")))
	}

	orch := services.NewApprovalOrchestrator(st.workflows, st.requests, users,
		services.WithDispatcher(channels),
		services.WithEventBus(bus),
		services.WithExpressionEngine(expression.NewEngine()),
		services.WithMetrics(metrics.New(registry)),
		services.WithLogger(logger),
		services.WithEscalationSchedule(cfg.EscalationSchedule),
		services.WithRetryPolicy(services.RetryPolicy{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitial,
			MaxInterval:     services.DefaultRetryPolicy.MaxInterval,
		}),
	)

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rest.NewRouter(rest.RouterConfig{
		Approvals: rest.NewApprovalHandler(orch, inbox),
		Workflows: rest.NewWorkflowHandler(services.NewWorkflowService(st.workflows, logger), orch),
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    logger.Named("http"),
		Gatherer:  registry,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := orch.Scheduler()
	if err := scheduler.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// auditOutcome logs terminal decisions so they can be shipped with the process logs.
func auditOutcome(logger *zap.Logger) services.EventHandler {
	return func(_ context.Context, payload interface{}) error {
		evt, ok := payload.(services.RequestEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T", payload)
		}
		logger.Info("approval decided",
			zap.String("event", evt.Type.String()),
			zap.String("request_id", evt.Request.ID),
			zap.String("workflow_id", evt.Request.WorkflowID),
			zap.String("document_id", evt.Request.DocumentID),
			zap.String("actor_id", evt.ActorID),
			zap.Int("revision", evt.Request.RevisionCount))
		return nil
	}
}
