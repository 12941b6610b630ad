package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for on-disk files. Pointers distinguish unset
// keys from zero values.
type fileConfig struct {
	URL           *string `toml:"url" yaml:"url"`
	SelectorsFile *string `toml:"selectors_file" yaml:"selectors_file"`
	OutputFile    *string `toml:"output_file" yaml:"output_file"`
	Iterations    *int    `toml:"iterations" yaml:"iterations"`
	Timeout       *string `toml:"timeout" yaml:"timeout"`
	UserAgent     *string `toml:"user_agent" yaml:"user_agent"`
	CacheSize     *int    `toml:"cache_size" yaml:"cache_size"`
	LogFile       *string `toml:"log_file" yaml:"log_file"`
	LogMaxSizeMB  *int    `toml:"log_max_size_mb" yaml:"log_max_size_mb"`
	Verbose       *bool   `toml:"verbose" yaml:"verbose"`
	MetricsAddr   *string `toml:"metrics_addr" yaml:"metrics_addr"`
}

// LoadFile overlays the TOML or YAML file at path onto cfg. The format is
// chosen by extension (.toml, .yaml, .yml).
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse toml config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}

	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.URL != nil {
		cfg.URL = *fc.URL
	}
	if fc.SelectorsFile != nil {
		cfg.SelectorsFile = *fc.SelectorsFile
	}
	if fc.OutputFile != nil {
		cfg.OutputFile = *fc.OutputFile
	}
	if fc.Iterations != nil {
		cfg.Iterations = *fc.Iterations
	}
	if fc.Timeout != nil {
		timeout, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", *fc.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if fc.UserAgent != nil {
		cfg.UserAgent = *fc.UserAgent
	}
	if fc.CacheSize != nil {
		cfg.CacheSize = *fc.CacheSize
	}
	if fc.LogFile != nil {
		cfg.LogFile = *fc.LogFile
	}
	if fc.LogMaxSizeMB != nil {
		cfg.LogMaxSizeMB = *fc.LogMaxSizeMB
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
	return nil
}
