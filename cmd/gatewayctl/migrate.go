package main

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/persistence/postgres"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply the embedded migrations to the database configured through the
GATEWAY_DATABASE__* environment variables. Migrations are idempotent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, db *postgres.DB) error {
				if err := db.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func merchantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchants",
		Short: "Manage merchant accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import [seed-file]",
		Short: "Create or update merchant accounts from a YAML seed file",
		Long: `Create or update merchant accounts from a YAML seed file:

  merchants:
    - id: shop-1
      secret: s3cret
      active: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := memory.LoadMerchantFile(args[0])
			if err != nil {
				return err
			}
			return withDatabase(cmd.Context(), func(ctx context.Context, db *postgres.DB) error {
				if err := postgres.NewMerchantRepository(db).Upsert(ctx, accounts...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d merchant(s)\n", len(accounts))
				return nil
			})
		},
	})

	return cmd
}

func withDatabase(ctx context.Context, fn func(ctx context.Context, db *postgres.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("database driver is %q, these commands need %q", cfg.Database.Driver, config.DriverPostgres)
	}

	db, err := postgres.Connect(ctx, &cfg.Database, cfg.Logger.NewLogger())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	return fn(ctx, db)
}

