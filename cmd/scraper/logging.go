package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-selectors/config"
	charmlog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger returns the process logger. Headless runs log to stderr through
// charmbracelet/log; the terminal UI owns the screen, so it logs JSON to a
// rotating file instead.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level := &slog.LevelVar{}
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	if cfg.Headless {
		return slog.New(newConsoleHandler(stderr, cfg.Verbose)), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
	return slog.New(handler), rotator, nil
}

func newConsoleHandler(w io.Writer, verbose bool) *charmlog.Logger {
	logger := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           charmlog.InfoLevel,
	})
	if verbose {
		logger.SetLevel(charmlog.DebugLevel)
	}
	return logger
}
