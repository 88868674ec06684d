// Command onit-agent runs the Onit prediction market agent: it bridges XMTP
// conversations to the backend bot and answers market commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onit-labs/xmtp-bot/internal/api"
	"github.com/onit-labs/xmtp-bot/internal/bridge"
	"github.com/onit-labs/xmtp-bot/internal/config"
	"github.com/onit-labs/xmtp-bot/internal/version"
)

var (
	configPath string
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:           "onit-agent",
		Short:         "Onit prediction market agent for XMTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAndValidate(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, closeLog, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			logger.Info("starting onit-agent",
				"version", version.Version,
				"commit", version.Commit,
				"config", configPath,
				"instance_id", cfg.Instance.ID,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := bridge.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to start bridge", "error", err)
				return err
			}
			if err := b.Run(ctx); err != nil {
				logger.Error("bridge stopped with error", "error", err)
				return err
			}
			return nil
		},
	}

	marketsCmd = &cobra.Command{
		Use:   "markets [tags...]",
		Short: "List the newest markets, optionally filtered by tags",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithDefaults(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			client := api.NewClient(cfg.Onit.APIURL, cfg.Onit.APIKey,
				api.WithTimeout(cfg.Onit.Timeout),
				api.WithPageSize(cfg.Poller.PageSize),
			)
			markets, err := client.GetRecentMarkets(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(markets)
			}
			if len(markets) == 0 {
				fmt.Fprintln(out, "no markets found")
				return nil
			}
			for _, m := range markets {
				fmt.Fprintf(out, "%s  %s\n", m.MarketAddress, m.Question)
			}

			tag := ""
			if tags := api.NormalizeTags(args); len(tags) > 0 {
				tag = tags[0]
			}
			fmt.Fprintf(out, "\nMore at %s\n", api.SiteURL(cfg.Onit.SiteURL, tag))
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "onit-agent", info)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/onit-agent.yaml", "path to config file")
	marketsCmd.Flags().BoolVar(&jsonOutput, "json", false, "print markets as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "print build information as JSON")

	rootCmd.AddCommand(runCmd, marketsCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
