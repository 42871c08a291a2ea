package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/perfhud/internal/agent"
	"github.com/ethpandaops/perfhud/internal/migrate"
	"github.com/ethpandaops/perfhud/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perfhud",
		Short: "Performance overlay and telemetry agent",
		Long: `perfhud samples CPU, memory, disk, pagefile and per-process I/O
counters, tracks frame times reported by a renderer, and publishes a
compact on-screen display plus periodic reports to the configured sinks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)
	cmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	if err := cmd.MarkFlagRequired("config"); err != nil {
		fmt.Fprintf(os.Stderr, "error marking flag required: %v\n", err)
		os.Exit(1)
	}

	cmd.AddCommand(versionCmd(), migrateCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ClickHouse report schema",
	}

	cmd.PersistentFlags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)

	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		fmt.Fprintf(os.Stderr, "error marking flag required: %v\n", err)
		os.Exit(1)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := newMigrator()
				if err != nil {
					return err
				}

				return m.Up(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := newMigrator()
				if err != nil {
					return err
				}

				return m.Down(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := newMigrator()
				if err != nil {
					return err
				}

				v, dirty, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}

				latest, err := migrate.Versions()
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %t, available: %v\n", v, dirty, latest)

				return nil
			},
		},
	)

	return cmd
}

func newLogger(cfg *agent.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	return log, nil
}

func newMigrator() (migrate.Migrator, error) {
	cfg, err := agent.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if !cfg.Sinks.ClickHouse.Enabled {
		return nil, errors.New("sinks.clickhouse must be enabled to run migrations")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	return migrate.New(log, cfg.Sinks.ClickHouse.ClickHouseConfig)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := agent.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := agent.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	log.WithField("version", version.Full()).Info("Starting perfhud agent")

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down perfhud agent")

	if err := a.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping agent: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}
