package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/onit-labs/xmtp-bot/internal/config"
	"github.com/onit-labs/xmtp-bot/internal/database"
	"github.com/onit-labs/xmtp-bot/internal/store"
)

var (
	pruneOlderThan time.Duration

	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the bridge tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete processed-message records older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pruneOlderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			pg := store.NewPostgres(cmd.Context(), db, store.DefaultWriterConfig(), clock.New(), nil)
			defer pg.Close(context.WithoutCancel(cmd.Context()))

			n, err := pg.PruneProcessed(cmd.Context(), time.Now().Add(-pruneOlderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d processed messages\n", n)
			return nil
		},
	}
)

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 7*24*time.Hour, "retention for processed-message records")
	dbCmd.AddCommand(migrateCmd, pruneCmd)
	rootCmd.AddCommand(dbCmd)
}

func openDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("no database configured (database.postgres.host is empty)")
	}
	return db, nil
}
