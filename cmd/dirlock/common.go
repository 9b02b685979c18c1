package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"dirlock/pkg/config"
	"dirlock/pkg/metrics"
	"dirlock/pkg/usecase"
)

// exitError carries a child's exit status out of Execute without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

// commandEnv is the per-invocation state shared by subcommands.
type commandEnv struct {
	settings config.Config
	logger   zerolog.Logger
	service  *usecase.Service
	registry *prometheus.Registry
}

func loadSettings() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg, nil
}

func prepareCommand() (*commandEnv, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}

	env := &commandEnv{
		settings: cfg,
		logger:   newLogger(os.Stderr, cfg),
	}

	opts := usecase.Options{
		Logger: env.logger,
		Shell:  cfg.Shell,
	}
	if cfg.MetricsFile != "" {
		env.registry = prometheus.NewRegistry()
		opts.Observer = metrics.New(env.registry)
	}
	env.service = usecase.New(opts)

	return env, nil
}

// finish writes the metrics textfile when one is configured. Failures are
// logged, not returned, so they never mask the command's own result.
func (e *commandEnv) finish() {
	if e.registry == nil {
		return
	}

	if err := metrics.WriteTextfile(e.settings.MetricsFile, e.registry); err != nil {
		e.logger.Error().Err(err).Str("path", e.settings.MetricsFile).Msg("metrics export failed")
	}
}

func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	format := cfg.LogFormat
	if format == config.FormatAuto {
		format = config.FormatJSON
		if isTerminal(w) {
			format = config.FormatConsole
		}
	}

	out := w
	if format == config.FormatConsole {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}

func targetDirArg(args []string) string {
	if len(args) == 0 {
		return "."
	}

	return args[0]
}

func printCommandHeader(command, rootDir string) {
	fmt.Printf("Command: %s\n", command)
	fmt.Printf("Root directory: %s\n", rootDir)
}

func printSummary(lines ...string) {
	fmt.Println("=== Summary ===")
	for _, line := range lines {
		fmt.Println(line)
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
