package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/vision-care-api/internal/app"
	"github.com/noah-isme/vision-care-api/pkg/config"
	"github.com/noah-isme/vision-care-api/pkg/database"
	"github.com/noah-isme/vision-care-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:          "framectl",
	Short:        "Administrative tool for the vision-care fulfillment engine",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		version, err := database.Migrate(db, cfg.Database.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("actor", "", "User id recorded as the actor of workflow changes")
	rootCmd.PersistentFlags().Bool("verbose", false, "Emit service logs to stderr")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(framesCmd)
	rootCmd.AddCommand(studentsCmd)
}

// withContainer loads configuration, wires the services and runs fn against them.
// Migrations are left to the migrate command.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Database.RunMigrations = false

	logr := zap.NewNop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		if logr, err = logger.New(cfg); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logr.Sync() //nolint:errcheck
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := app.Build(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer container.Close() //nolint:errcheck

	return fn(ctx, container)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
