package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/auth"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/export"
	"github.com/repaart/support-desk/internal/persistence"
)

func newExportCmd() *cobra.Command {
	var (
		format string
		out    string
		filter = aggregator.DefaultFilter()
		tab    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the recent tickets as CSV or XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			filter.Tab = aggregator.ParseTab(tab)
			if out == "" {
				out = f.Filename(time.Now().Format("2006-01-02"))
			}

			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				buffered := bufio.NewWriter(file)
				defer buffered.Flush()
				w = buffered
			}
			if err := env.service.Export(cmd.Context(), filter, f, w); err != nil {
				return err
			}
			if out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "output file, - for stdout")
	cmd.Flags().StringVar(&tab, "tab", string(aggregator.TabAll), "all, open, resolved, high or unread")
	cmd.Flags().StringVar(&filter.Category, "category", aggregator.CategoryAll, "ticket category")
	cmd.Flags().StringVar(&filter.Search, "q", "", "text search over subject, email and message")
	return cmd
}

func newResetCmd() *cobra.Command {
	var confirm bool
	var actor string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every ticket with its messages and history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("refusing to reset without --confirm")
			}
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			report, err := env.service.ResetCenter(cmd.Context(), &domain.Admin{UID: actor, Email: actor})
			fmt.Fprintf(cmd.OutOrStdout(), "tickets=%d messages=%d history=%d batches=%d\n",
				report.Tickets, report.Messages, report.History, report.Batches)
			return err
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the irreversible reset")
	cmd.Flags().StringVar(&actor, "actor", "supportctl", "identity recorded in the audit log")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var admin domain.Admin
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token for development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if admin.UID == "" {
				return fmt.Errorf("--uid is required")
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expires, err := tokens.GenerateToken(admin, domain.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&admin.UID, "uid", "", "admin uid")
	cmd.Flags().StringVar(&admin.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&admin.DisplayName, "name", "", "admin display name")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if cfg.Postgres.DSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required")
			}
			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if dir == "" {
				dir = cfg.Postgres.MigrationsDir
			}
			return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), dir, logger)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
	return cmd
}
