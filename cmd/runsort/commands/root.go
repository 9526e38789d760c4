// Package commands implements CLI command handlers for runsort.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/runsort/pkg/config"
	"github.com/Sumatoshi-tech/runsort/pkg/observability"
	"github.com/Sumatoshi-tech/runsort/pkg/version"
)

type observabilityInit func(observability.Config) (observability.Providers, error)

// app carries state shared by every subcommand of one invocation.
type app struct {
	configPath string
	verbose    bool
	quiet      bool
	logJSON    bool

	// metricsTextfile is bound to sort --metrics-textfile and wins over config.
	metricsTextfile string

	cfg       *config.Config
	providers observability.Providers
	metrics   *observability.SortMetrics

	initObs observabilityInit
}

// NewRootCommand creates the runsort root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	return newRootCommandWithDeps(observability.Init)
}

func newRootCommandWithDeps(initObs observabilityInit) *cobra.Command {
	a := &app{initObs: initObs}

	rootCmd := &cobra.Command{
		Use:   "runsort",
		Short: "runsort - adaptive run-merging sorter",
		Long: `runsort sorts numbers or strings by growing ordered runs kept in a
red-black tree, merging neighbouring runs as gaps between them fill.

Commands:
  sort      Sort one or more inputs
  stats     Show the run structure of a sorted input
  restore   Print the values stored in a snapshot
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: runsort.yaml in ., ./config, ~/.config/runsort)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress output")
	rootCmd.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "emit JSON logs")

	rootCmd.AddCommand(newSortCommand(a))
	rootCmd.AddCommand(newStatsCommand(a))
	rootCmd.AddCommand(newRestoreCommand(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

type runFunc func(ctx context.Context, cmd *cobra.Command, args []string) error

// wrap loads configuration and telemetry before fn and flushes telemetry
// after it, whether or not fn failed.
func (a *app) wrap(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		err = a.setup(cmd)
		if err != nil {
			return err
		}

		defer func() {
			shutdownErr := a.providers.Shutdown(context.WithoutCancel(cmd.Context()))
			if shutdownErr != nil {
				err = errors.Join(err, fmt.Errorf("shutdown telemetry: %w", shutdownErr))
			}
		}()

		return fn(cmd.Context(), cmd, args)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a.cfg = cfg

	providers, err := a.initObs(a.observabilityConfig(cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	a.providers = providers

	metrics, err := observability.NewSortMetrics(providers.Meter)
	if err != nil {
		return errors.Join(err, providers.Shutdown(context.WithoutCancel(cmd.Context())))
	}

	a.metrics = metrics

	return nil
}

func (a *app) observabilityConfig(logWriter io.Writer) observability.Config {
	telemetry := a.cfg.Telemetry

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = telemetry.ServiceName
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = telemetry.Environment
	obsCfg.OTLPEndpoint = telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = telemetry.OTLPInsecure
	obsCfg.SampleRatio = telemetry.SampleRatio
	obsCfg.MetricsTextfile = telemetry.MetricsTextfile
	obsCfg.LogLevel = a.cfg.Logging.SlogLevel()
	obsCfg.LogJSON = a.logJSON || a.cfg.Logging.JSON()
	obsCfg.LogWriter = logWriter

	if a.metricsTextfile != "" {
		obsCfg.MetricsTextfile = a.metricsTextfile
	}

	switch {
	case a.verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case a.quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	return obsCfg
}

// status prints a colored progress line to stderr unless --quiet is set.
func (a *app) status(cmd *cobra.Command, attr color.Attribute, format string, args ...any) {
	if a.quiet {
		return
	}

	color.New(attr).Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
