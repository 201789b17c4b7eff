package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"hallbook/config"
	"hallbook/schedule"
	"hallbook/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var (
	outputJSON    bool
	outputCompact bool
	verbose       bool
	configFile    string
	cfg           config.Config
	logger        = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "hall",
	Short: "Gym hall scheduling and team bookings",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputJSON && outputCompact {
			return fmt.Errorf("choose either --json or --compact")
		}
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded

		built, err := newLogger(cfg.LogLevel, verbose)
		if err != nil {
			return err
		}
		logger = built

		// Piped output drops table headers unless JSON was asked for.
		if !outputJSON && !outputCompact && !term.IsTerminal(int(os.Stdout.Fd())) {
			outputCompact = true
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.AddCommand(venuesCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(segmentsCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(gridCmd())
	rootCmd.AddCommand(courtsCmd())
	rootCmd.AddCommand(bookingsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(sweepCmd())

	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		reportError(err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output JSON")
	rootCmd.PersistentFlags().BoolVar(&outputCompact, "compact", false, "Output compact text")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Human readable debug logging on stderr")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.config/hallbook/config.json)")
}

func loadConfig() (config.Config, error) {
	if configFile != "" {
		return config.LoadFrom(configFile, ".env")
	}
	return config.Load()
}

func newLogger(level string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(parsed)
	return zc.Build()
}

// session is one opened database with the engine and notification sinks
// built on top of it.
type session struct {
	db      *storage.DB
	engine  *schedule.Engine
	closers []io.Closer
}

func openSession() (*session, error) {
	path, err := cfg.ResolveDatabasePath()
	if err != nil {
		return nil, err
	}
	var db *storage.DB
	if cfg.DatabasePath == "" {
		db, err = storage.OpenDefault()
	} else {
		db, err = storage.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	notifier, closers := buildNotifier(cfg.Notify, logger)
	engine := schedule.New(db,
		schedule.WithLogger(logger),
		schedule.WithNotifier(notifier),
	)
	return &session{db: db, engine: engine, closers: closers}, nil
}

func (s *session) Close() error {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			logger.Warn("close notifier", zap.Error(err))
		}
	}
	return s.db.Close()
}

// withSession opens the database for the duration of fn.
func withSession(fn func(ctx context.Context, s *session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(context.Background(), s)
}

type errorOutput struct {
	Error      string                    `json:"error"`
	Validation schedule.ValidationErrors `json:"validation_errors,omitempty"`
	Conflicts  []schedule.Conflict       `json:"conflicts,omitempty"`
}

func reportError(err error) {
	if !outputJSON {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}
	out := errorOutput{Error: err.Error()}
	var verrs schedule.ValidationErrors
	if errors.As(err, &verrs) {
		out.Validation = verrs
	}
	var conflict *schedule.ConflictError
	if errors.As(err, &conflict) {
		out.Conflicts = conflict.Conflicts
	}
	_ = writeJSON(out)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, schedule.ErrValidation):
		return 2
	case errors.Is(err, schedule.ErrCapacity):
		return 3
	case errors.Is(err, schedule.ErrUnauthorized):
		return 4
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return 5
	case errors.Is(err, schedule.ErrConcurrency):
		return 75
	}
	return 1
}
