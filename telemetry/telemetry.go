package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/lmittmann/tint"
)

// Telemetry provides centralized logging and stats collection
type Telemetry struct {
	Logger         *slog.Logger
	LogCapture     *LogCapture
	StatsCollector *StatsCollector

	logLevel slog.Level
	cliMode  bool
	output   io.Writer
}

// Option configures a Telemetry instance
type Option func(*Telemetry)

// WithCLIMode keeps log output inside the capture buffer only, so it does not
// tear the interactive UI.
func WithCLIMode(enabled bool) Option {
	return func(t *Telemetry) {
		t.cliMode = enabled
	}
}

// WithLogLevel sets the minimum level from a name: debug, info, warn, error.
func WithLogLevel(level string) Option {
	return func(t *Telemetry) {
		t.logLevel = ParseLevel(level)
	}
}

// WithOutput replaces stderr as the terminal log destination.
func WithOutput(w io.Writer) Option {
	return func(t *Telemetry) {
		t.output = w
	}
}

// New creates a new telemetry instance
func New(options ...Option) *Telemetry {
	t := &Telemetry{
		LogCapture:     NewLogCapture(constants.DefaultLogBufferSize),
		StatsCollector: NewStatsCollector(),
		logLevel:       slog.LevelInfo,
		output:         os.Stderr,
	}
	for _, option := range options {
		option(t)
	}

	if !t.cliMode {
		t.LogCapture.AddWriter(t.output)
	}

	t.Logger = slog.New(tint.NewHandler(t.LogCapture, &tint.Options{
		Level:      t.logLevel,
		TimeFormat: time.TimeOnly,
		NoColor:    !t.cliMode && !isTerminal(t.output),
	}))

	return t
}

func (t *Telemetry) GetLogger() *slog.Logger {
	return t.Logger
}

func (t *Telemetry) GetStatsCollector() *StatsCollector {
	return t.StatsCollector
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
