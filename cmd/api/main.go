package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/repaart/support-desk/internal/api/http"
	"github.com/repaart/support-desk/internal/api/http/handlers"
	"github.com/repaart/support-desk/internal/auth"
	"github.com/repaart/support-desk/internal/config"
	"github.com/repaart/support-desk/internal/desk"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/feed"
	"github.com/repaart/support-desk/internal/notify"
	"github.com/repaart/support-desk/internal/observability"
	"github.com/repaart/support-desk/internal/persistence"
	"github.com/repaart/support-desk/internal/repository"
	"github.com/repaart/support-desk/internal/repository/memory"
	"github.com/repaart/support-desk/internal/richtext"
	"github.com/repaart/support-desk/internal/service"
	"github.com/repaart/support-desk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var store repository.Store
	var pgCheck handlers.Pinger
	if pool := pg.PoolHandle(); pool != nil {
		store = repository.NewPostgresStore(pool, cfg.Support.BatchLimit)
		pgCheck = pg
	} else {
		logger.Warn("running on the in-memory store; data is lost on restart")
		store = memory.NewStore(cfg.Support.BatchLimit)
	}

	changes := newChangeFeed(ctx, redis, logger)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	repos := store.Repositories()
	feed.NewBridge(changes, logger).RegisterHandlers(dispatcher)
	worker.StartNotificationWorker(
		service.NewNotificationService(dispatcher, repos.Notifications, logger),
		service.NewAuditService(dispatcher, repos.Audit, logger),
	)
	if writer := worker.NewKafkaWriter(cfg.Kafka, logger); writer != nil {
		forwarder := worker.NewEventForwarder(writer, logger)
		forwarder.RegisterHandlers(dispatcher)
		defer forwarder.Close() //nolint:errcheck
		logger.Info("forwarding events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	thresholds := cfg.Support.SLAThresholds()
	supportService := service.NewSupportService(service.SupportDependencies{
		Store:        store,
		Mailer:       notify.NewMailer(cfg.SMTP, logger),
		Sanitizer:    richtext.NewSanitizer(),
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		TicketWindow: cfg.Support.TicketWindow,
	})
	registry := desk.NewRegistry(desk.RegistryDependencies{
		Backend:     supportService,
		Feed:        changes,
		Metrics:     metrics,
		Logger:      logger,
		Thresholds:  thresholds,
		IdleTimeout: cfg.Support.DeskIdleTimeout(),
	})
	defer registry.CloseAll()

	scheduler := worker.NewScheduler(logger)
	if err := scheduler.Add("sla_sweep", cfg.Support.SLASweepSpec, worker.NewSLASweeper(supportService, metrics, thresholds, logger).Run); err != nil {
		logger.Fatal("failed to schedule sla sweep", zap.Error(err))
	}
	if err := scheduler.Add("desk_reaper", "@every 1m", worker.DeskReaper(registry)); err != nil {
		logger.Fatal("failed to schedule desk reaper", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pgCheck, redis),
		Tickets:        handlers.NewTicketsHandler(supportService, thresholds, time.Now),
		Desks:          handlers.NewDesksHandler(registry, thresholds, logger),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(10 * time.Second)
}

// newChangeFeed shares changes over Redis when it is reachable and falls
// back to a process-local feed otherwise.
func newChangeFeed(ctx context.Context, redis *persistence.Redis, logger *zap.Logger) feed.Feed {
	if redis.Reachable() {
		shared := feed.NewRedisFeed(redis.Client, redis.FeedChannel, logger)
		err := shared.Start(ctx)
		if err == nil {
			return shared
		}
		logger.Warn("redis change feed unavailable", zap.Error(err))
	}
	logger.Info("using in-process change feed")
	return feed.NewMemoryFeed(feed.DefaultBuffer)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
