package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/roach88/sessionstore/internal/config"
	"github.com/roach88/sessionstore/internal/session"
	"github.com/roach88/sessionstore/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogLevel  string
	Config    string
	Database  string
	Streaming bool

	// Logger is installed by the root command before any subcommand runs.
	Logger *slog.Logger

	// IDs generates ids for rotate and new. Defaults to session.UUIDGenerator.
	IDs session.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sessionstore CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessionstore",
		Short: "Inspect and maintain a SQLite session store",
		Long: `Inspect and maintain a SQLite session store.

Writes go through the same read-merge-write lifecycle a request would use,
so edits made here never clobber concurrent changes to other fields.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level, err := parseLevel(opts.LogLevel, opts.Verbose)
			if err != nil {
				return err
			}
			opts.Logger = NewLogger(cmd.ErrOrStderr(), level)
			if opts.IDs == nil {
				opts.IDs = session.UUIDGenerator{}
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.Streaming, "streaming", false, "use streaming blob I/O (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewUnsetCommand(opts))
	cmd.AddCommand(NewRotateCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewNewCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func parseLevel(s string, verbose bool) (slog.Level, error) {
	if verbose {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger returns a tint logger writing to w. Colour is enabled only when
// w is a terminal.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    noColor,
	}))
}

// loadConfig resolves the effective configuration: defaults, then the
// config file, then explicitly set flags.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.Load(o.Config)
		if err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
		cfg.Database.Path = o.Database
	}
	if f := cmd.Flags().Lookup("streaming"); f != nil && f.Changed {
		cfg.Backend.Streaming = o.Streaming
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openStore opens the configured store.
func (o *RootOptions) openStore(cmd *cobra.Command) (*store.Store, config.Config, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, config.Config{}, err
	}

	storeOpts := cfg.StoreOptions()
	storeOpts.Logger = o.logger()
	st, err := store.Open(storeOpts)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, cfg, nil
}

// openSession creates and opens a Lifecycle over st.
func (o *RootOptions) openSession(cmd *cobra.Command, st *store.Store, cfg config.Config) (*session.Lifecycle, error) {
	l, err := session.New(st, session.Options{
		Exclusive: cfg.Session.Exclusive,
		Logger:    o.logger(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create session", err)
	}
	if err := l.Open(cmd.Context()); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open session", err)
	}
	return l, nil
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
