// cmd/main.go is the application entry point.
// It defines the invitecore command tree; serve.go wires the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/auth"
	"github.com/Shivanand-hulikatti/invitation-core/internal/config"
	"github.com/Shivanand-hulikatti/invitation-core/internal/database"
	"github.com/Shivanand-hulikatti/invitation-core/internal/repository"
)

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var dev bool
	root := &cobra.Command{
		Use:   "invitecore",
		Short: "Invitation provisioning and public guest submission service",
	}
	root.PersistentFlags().BoolVar(&dev, "dev", false, "human-readable development logging")

	root.AddCommand(
		serveCommand(&dev),
		migrateCommand(&dev),
		seedCommand(&dev),
		tokenCommand(),
	)
	return root
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func migrateCommand(dev *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := newLogger(*dev)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := database.NewPool(cmd.Context(), cfg.DB, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}

func seedCommand(dev *bool) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the package and template catalog from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := newLogger(*dev)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			cat, err := database.LoadCatalogFile(file)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := database.NewPool(cmd.Context(), cfg.DB, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.NewCatalogRepository(pool).Upsert(cmd.Context(), cat); err != nil {
				return err
			}
			logger.Info("catalog seeded",
				zap.String("file", file),
				zap.Int("packages", len(cat.Packages)),
				zap.Int("templates", len(cat.Templates)))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "configs/catalog.yaml", "catalog YAML file")
	return cmd
}

func tokenCommand() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for local testing",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("missing required flag 'user'")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := auth.New(cfg.JWTSecret, zap.NewNop())
			if err != nil {
				return err
			}
			token, err := a.Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
