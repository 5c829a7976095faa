package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/config"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/notify"
	"github.com/repaart/support-desk/internal/observability"
	"github.com/repaart/support-desk/internal/persistence"
	"github.com/repaart/support-desk/internal/repository"
	"github.com/repaart/support-desk/internal/service"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "supportctl",
		Short:         "Operate the Repaart support desk from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newExportCmd(), newResetCmd(), newTokenCmd(), newMigrateCmd())
	return root
}

// cliEnv is what the data commands share.
type cliEnv struct {
	cfg     *config.Config
	logger  *zap.Logger
	pg      *persistence.Postgres
	service *service.SupportService
}

func (r *cliEnv) Close() {
	r.pg.Close()
	_ = r.logger.Sync()
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

// openEnv connects to Postgres and builds the support service with
// audit logging. Commands never send reply email.
func openEnv(ctx context.Context) (*cliEnv, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	store := repository.NewPostgresStore(pg.PoolHandle(), cfg.Support.BatchLimit)
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewAuditService(dispatcher, store.Repositories().Audit, logger).RegisterHandlers()

	return &cliEnv{
		cfg:    cfg,
		logger: logger,
		pg:     pg,
		service: service.NewSupportService(service.SupportDependencies{
			Store:        store,
			Mailer:       notify.NewLogMailer(logger),
			Dispatcher:   dispatcher,
			Logger:       logger,
			TicketWindow: cfg.Support.TicketWindow,
		}),
	}, nil
}
