// Package commands provides the CLI command implementations for chronicle.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/havenhq/chronicle/cli/config"
	"github.com/havenhq/chronicle/cli/styles"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Runtime is the state shared by every command of one invocation.
// It is filled in by the root command before any subcommand runs.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger

	provider *sdktrace.TracerProvider
}

// TracerProvider returns the provider set up by --trace, or nil.
func (r *Runtime) TracerProvider() *sdktrace.TracerProvider {
	return r.provider
}

// Shutdown flushes pending spans.
func (r *Runtime) Shutdown(cmd *cobra.Command) error {
	if r.provider == nil {
		return nil
	}
	err := r.provider.Shutdown(cmd.Context())
	r.provider = nil
	return err
}

type rootFlags struct {
	configPath string
	noColor    bool
	logLevel   string
	logFormat  string
	trace      bool
}

// NewRootCommand creates the root command for the chronicle CLI
func NewRootCommand() *cobra.Command {
	var (
		flags rootFlags
		rt    = &Runtime{}
	)

	rootCmd := &cobra.Command{
		Use:   "chronicle",
		Short: "Event store for case records",
		Long: styles.Title.Render("chronicle") + `

Chronicle stores consent records and restricted case notes as append-only
event streams with optimistic concurrency.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("chronicle init --driver sqlite --url events.db") + `
  ` + styles.Code.Render("chronicle migrate") + `
  ` + styles.Code.Render("chronicle stream show <aggregate-id>") + `
  ` + styles.Code.Render("chronicle diagnose"),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.noColor {
				styles.DisableColors()
			}
			return rt.setup(cmd, flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return rt.Shutdown(cmd)
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to chronicle.yaml (default: search upwards from the working directory)")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&flags.trace, "trace", false, "Print OpenTelemetry spans to stderr")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewMigrateCommand(rt))
	rootCmd.AddCommand(NewStreamCommand(rt))
	rootCmd.AddCommand(NewTypesCommand())
	rootCmd.AddCommand(NewDiagnoseCommand(rt))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

func (r *Runtime) setup(cmd *cobra.Command, flags rootFlags) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg, path, err := config.Resolve(flags.configPath, cwd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	if flags.trace {
		cfg.Telemetry.Trace = true
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}

	r.Config = cfg
	r.ConfigPath = path
	r.Logger = logger

	if cfg.Telemetry.Trace {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(cmd.ErrOrStderr()),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		r.provider = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	}

	logger.Debug("configuration resolved",
		"path", path,
		"driver", cfg.Database.Driver,
		"codec", cfg.Database.Codec,
		"publish", cfg.Publish.Kind,
		"trace", cfg.Telemetry.Trace)
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", cfg.Level)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), styles.FormatError(err.Error()))
		return err
	}

	return nil
}
