package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	URL           string
	SelectorsFile string
	OutputFile    string
	Iterations    int
	Timeout       time.Duration
	UserAgent     string // empty keeps the collector default
	CacheSize     int    // compiled selectors kept in memory
	LogFile       string
	LogMaxSizeMB  int
	Verbose       bool
	Headless      bool
	MetricsAddr   string
}

// DefaultConfig returns the defaults used by the interactive tool.
func DefaultConfig() *Config {
	return &Config{
		URL:           "",
		SelectorsFile: "",
		OutputFile:    "output/scrape.txt",
		Iterations:    100,
		Timeout:       10 * time.Second,
		UserAgent:     "",
		CacheSize:     128,
		LogFile:       "tmp/scraper.log",
		LogMaxSizeMB:  10,
		Verbose:       false,
		Headless:      false,
		MetricsAddr:   "",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.URL != "" {
		parsedURL, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("invalid URL: %w", err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("URL must include a host")
		}
	}

	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("log max size must be positive")
	}

	if c.Headless {
		if c.URL == "" {
			return fmt.Errorf("headless mode requires a URL")
		}
		if c.SelectorsFile == "" {
			return fmt.Errorf("headless mode requires a selectors file")
		}
		if c.OutputFile == "" {
			return fmt.Errorf("headless mode requires an output file")
		}
	}

	return nil
}
