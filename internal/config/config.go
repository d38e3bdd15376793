// Package config loads the optional .necropolis.toml file. Every setting has a
// default, so a missing file is equivalent to an empty one.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the config file looked up in the working directory.
const FileName = ".necropolis.toml"

// Config is the parsed configuration file.
type Config struct {
	Logging    LoggingConfig    `toml:"logging"`
	Classifier ClassifierConfig `toml:"classifier"`
	Parser     ParserConfig     `toml:"parser"`
	Aggregator AggregatorConfig `toml:"aggregator"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "debug".
	Level string `toml:"level"`
	// Dir is where .necropolis/debug.log is created. Defaults to the working directory.
	Dir string `toml:"dir"`
}

// GetLevel returns the configured level or "debug".
func (l *LoggingConfig) GetLevel() string {
	if l.Level == "" {
		return "debug"
	}
	return l.Level
}

// ClassifierConfig controls the interactive classifier.
type ClassifierConfig struct {
	// SignaturesFile is a YAML signature pack appended after the built-in signatures.
	SignaturesFile string `toml:"signatures_file"`
}

// ParserConfig controls outcome record construction.
type ParserConfig struct {
	// CollectionType is "pr_time" or "verification". Defaults to "pr_time".
	CollectionType string `toml:"collection_type"`
}

// GetCollectionType returns the configured collection type, falling back to
// "pr_time" for empty or unknown values.
func (p *ParserConfig) GetCollectionType() string {
	switch p.CollectionType {
	case "pr_time", "verification":
		return p.CollectionType
	default:
		return "pr_time"
	}
}

// AggregatorConfig controls taxonomy report generation.
type AggregatorConfig struct {
	// TopFingerprints is the number of fingerprint groups kept in the JSON report.
	// Defaults to 10.
	TopFingerprints *int `toml:"top_fingerprints"`

	// MarkdownFingerprints is the number of fingerprint groups listed in README.md.
	// Defaults to 5.
	MarkdownFingerprints *int `toml:"markdown_fingerprints"`

	// Database is the path of the SQLite ledger. Empty disables the ledger.
	Database string `toml:"database"`

	// WatchDebounceSeconds coalesces repeated file events in --watch mode.
	// Defaults to 2 seconds.
	WatchDebounceSeconds *int `toml:"watch_debounce_seconds"`
}

// GetTopFingerprints returns the JSON report fingerprint limit.
func (a *AggregatorConfig) GetTopFingerprints() int {
	if a.TopFingerprints != nil && *a.TopFingerprints > 0 {
		return *a.TopFingerprints
	}
	return 10
}

// GetMarkdownFingerprints returns the README fingerprint limit.
func (a *AggregatorConfig) GetMarkdownFingerprints() int {
	if a.MarkdownFingerprints != nil && *a.MarkdownFingerprints > 0 {
		return *a.MarkdownFingerprints
	}
	return 5
}

// GetWatchDebounce returns the watch debounce window.
func (a *AggregatorConfig) GetWatchDebounce() time.Duration {
	if a.WatchDebounceSeconds != nil && *a.WatchDebounceSeconds > 0 {
		return time.Duration(*a.WatchDebounceSeconds) * time.Second
	}
	return 2 * time.Second
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Find loads dir/.necropolis.toml, returning an empty Config when the file
// does not exist.
func Find(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return Load(path)
}
