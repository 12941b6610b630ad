package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overrides cfg with SCRAPER_* environment variables.
func ApplyEnv(cfg *Config) error {
	if value, ok := EnvString("SCRAPER_URL"); ok {
		cfg.URL = value
	}
	if value, ok := EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := EnvString("SCRAPER_USER_AGENT"); ok {
		cfg.UserAgent = value
	}
	if value, ok := EnvString("SCRAPER_LOG_FILE"); ok {
		cfg.LogFile = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}

	if value, ok, err := EnvInt("SCRAPER_ITERATIONS"); err != nil {
		return err
	} else if ok {
		cfg.Iterations = value
	}
	if value, ok, err := EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return err
	} else if ok {
		cfg.Timeout = value
	}

	return nil
}
