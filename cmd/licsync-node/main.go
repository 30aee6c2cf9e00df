// Package main is the entrypoint for the licsync enforcement node CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/licsync/licsync/internal/cache"
	"github.com/licsync/licsync/internal/client"
	"github.com/licsync/licsync/internal/config"
)

// Build-time variables set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "licsync-node",
		Short: "licsync enforcement node - local authorization cache",
		Long: `licsync-node keeps a local authorization cache in sync with a
licsync server. It polls the server, applies snapshot payloads to its
SQLite cache, and serves enforcement decisions from that cache between
polls.`,
		SilenceUsage: true,
	}

	defaultPath, err := config.DefaultNodeConfigPath()
	if err != nil {
		defaultPath = "config.yml"
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "path to node config")

	rootCmd.AddCommand(newStartCmd(&configPath))
	rootCmd.AddCommand(newOnceCmd(&configPath))
	rootCmd.AddCommand(newStatusCmd(&configPath))
	rootCmd.AddCommand(newRegisterCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") != "production" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

func buildPoller(configPath string, logger zerolog.Logger) (*client.Poller, *cache.Store, *config.NodeConfig, error) {
	cfg, err := config.LoadNode(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("run 'licsync-node register' first: %w", err)
	}

	store, err := cache.NewStore(cfg.DataDir, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	transport := client.NewHTTPTransport(cfg.ServerURL, cfg.APIKey)
	return client.NewPoller(transport, store, cfg.DataDir, logger), store, cfg, nil
}

func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the sync loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			poller, store, cfg, err := buildPoller(*configPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			poller.Run(ctx, cfg.PollInterval)
			return nil
		},
	}
}

func newOnceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			poller, store, _, err := buildPoller(*configPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			result, err := poller.Poll(ctx)
			if err != nil {
				return err
			}
			if !result.Updated {
				fmt.Println("Cache is current.")
				return nil
			}
			fmt.Printf("Cache refreshed: %d users, %d reference rows (%d rejected records).\n",
				result.Counts.Users, result.Counts.ReferenceRows,
				result.Dictionary.Failed+result.Reference.Failed)
			return nil
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local cache state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNode(*configPath)
			if err != nil {
				return err
			}

			store, err := cache.NewStore(cfg.DataDir, zerolog.Nop())
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			last, err := store.LastSyncTime(ctx)
			if err != nil {
				return err
			}
			counts, err := store.CountSanity(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Server:         %s\n", valueOr(cfg.ServerURL, "(not registered)"))
			if last == nil {
				fmt.Println("Last sync:      never")
			} else {
				fmt.Printf("Last sync:      %s\n", last.Format(time.RFC3339))
			}
			fmt.Printf("Users:          %d\n", counts.Users)
			fmt.Printf("Reference rows: %d\n", counts.ReferenceRows)
			return nil
		},
	}
}

func newRegisterCmd(configPath *string) *cobra.Command {
	var serverURL, apiKey, dataDir string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Configure the node to sync with a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.NodeConfig{
				ServerURL:    serverURL,
				APIKey:       apiKey,
				DataDir:      dataDir,
				PollInterval: interval,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(*configPath); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", *configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "licsync server URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "node API key")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "cache data directory (defaults next to the config)")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "poll interval")
	cmd.MarkFlagRequired("server")
	cmd.MarkFlagRequired("api-key")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("licsync-node %s (%s)\n", Version, Commit)
		},
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
