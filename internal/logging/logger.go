package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"busline/internal/config"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the service logger from the logging section.
//
// output: stdout (default), stderr, file, or both (stdout plus file).
// File output goes through a size/age rotator; the returned closer flushes it
// and is nil when no file is involved. format=console switches the terminal
// side to human-readable lines while the file always receives JSON.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if name := strings.ToLower(strings.TrimSpace(cfg.Level)); name != "" {
		if parsed, err := zerolog.ParseLevel(name); err == nil {
			level = parsed
		}
	}
	console := strings.ToLower(strings.TrimSpace(cfg.Format)) == "console"

	var (
		output io.Writer
		closer io.Closer
	)
	switch mode := strings.ToLower(strings.TrimSpace(cfg.Output)); mode {
	case "", "stdout":
		output = terminal(os.Stdout, console)
	case "stderr":
		output = terminal(os.Stderr, console)
	case "file", "both":
		rotator, err := newRotator(cfg)
		if err != nil {
			return nil, nil, err
		}
		closer = rotator
		if mode == "file" {
			output = terminal(rotator, console)
		} else {
			output = zerolog.MultiLevelWriter(terminal(os.Stdout, console), rotator)
		}
	default:
		return nil, nil, fmt.Errorf("unknown logging.output %q", cfg.Output)
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("app", app.Name).
		Str("env", app.Environment).
		Str("version", app.Version).
		Logger()

	return &base, closer, nil
}

// Component derives a child logger tagged with the subsystem name.
func Component(base *zerolog.Logger, name string) *zerolog.Logger {
	l := base.With().Str("component", name).Logger()
	return &l
}

func terminal(w io.Writer, console bool) io.Writer {
	if console {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return w
}

func newRotator(cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("logging.output=%s requires logging.file_path", cfg.Output)
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 30),
		Compress:   true,
	}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
