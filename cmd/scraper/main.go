package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-selectors/config"
	"github.com/aluiziolira/go-scrape-selectors/pipeline"
	"github.com/aluiziolira/go-scrape-selectors/registry"
	"github.com/aluiziolira/go-scrape-selectors/scraper"
	"github.com/aluiziolira/go-scrape-selectors/session"
	"github.com/aluiziolira/go-scrape-selectors/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sinkBuffer = 1024

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	logger, closer, err := newLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log: %v\n", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, s)
	defer shutdownMetricsServer(metricsServer)

	if cfg.Headless {
		if err := runHeadless(ctx, cfg, s, os.Stdin, os.Stdout); err != nil {
			slog.Error("scraping failed", slog.Any("error", err))
			return 1
		}
		return 0
	}

	if err := runInteractive(ctx, cfg, s); err != nil {
		slog.Error("interactive session failed", slog.Any("error", err))
		return 1
	}
	return 0
}

// loadConfig layers defaults, the optional config file, SCRAPER_* env and
// explicitly set flags, in that order.
func loadConfig(args []string) (*config.Config, error) {
	defaults := config.DefaultConfig()

	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	headless := fs.Bool("headless", false, "Run one session without the terminal UI")
	url := fs.String("url", defaults.URL, "Page to scrape")
	selectors := fs.String("selectors", "", "File with one CSS selector per line, or - for stdin")
	output := fs.String("output", defaults.OutputFile, "Output file path")
	configPath := fs.String("config", "", "Optional TOML or YAML config file")
	iterations := fs.Int("iterations", defaults.Iterations, "Fetch-and-extract rounds per session")
	timeout := fs.Duration("timeout", defaults.Timeout, "Per-request timeout")
	userAgent := fs.String("user-agent", defaults.UserAgent, "User-Agent header")
	verbose := fs.Bool("v", false, "Enable verbose logging")
	logFile := fs.String("log-file", defaults.LogFile, "Log file used while the terminal UI is running")
	metricsAddr := fs.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFile(*configPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Headless = *headless
		case "url":
			cfg.URL = *url
		case "selectors":
			cfg.SelectorsFile = *selectors
		case "output":
			cfg.OutputFile = *output
		case "iterations":
			cfg.Iterations = *iterations
		case "timeout":
			cfg.Timeout = *timeout
		case "user-agent":
			cfg.UserAgent = *userAgent
		case "v":
			cfg.Verbose = *verbose
		case "log-file":
			cfg.LogFile = *logFile
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runInteractive(ctx context.Context, cfg *config.Config, s *scraper.Scraper) error {
	sink := pipeline.NewSink(sinkBuffer, slog.Default())
	defer sink.Close()

	orch := session.New(s, registry.New(sink), sink, cfg.Iterations)
	model := ui.New(ctx, orch, sink, cfg.URL, cfg.OutputFile)

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()

	orch.Cancel()
	orch.Wait()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func startMetricsServer(addr string, s *scraper.Scraper) *http.Server {
	if addr == "" || s.Metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}
