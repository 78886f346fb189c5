package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger writes human readable output to out and, when file is set, the
// same events as JSON to a rotated log file. Unknown levels mean info.
func NewLogger(out io.Writer, level, file string) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    50, // MB
				MaxBackups: 5,
				MaxAge:     30, // days
				Compress:   true,
			})
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
}

// SetupLogger builds the service logger from cfg and installs it globally.
func SetupLogger(cfg Config) zerolog.Logger {
	logger := NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFile).With().Str("service", "partidas").Logger()
	zerolog.SetGlobalLevel(logger.GetLevel())
	log.Logger = logger
	return logger
}
