// Package config defines the repository's runtime configuration: the
// options enumerated in spec.md §6, loaded from a YAML file with
// environment-variable overrides, following the DefaultConfig/LoadFromEnv/
// Validate triad the teacher uses for its database config
// (_examples/jordigilh-kubernaut/internal/database/connection_test.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

// Config holds every recognized option from spec.md §6.
type Config struct {
	// TrustedUniqueIdentifierTypes bypass the full dedup pipeline: a shared
	// trusted identifier pairs two references directly (§4.2 phase C).
	TrustedUniqueIdentifierTypes []string `yaml:"trusted_unique_identifier_types"`

	// MaxReferenceDuplicateDepth bounds duplicate chains (§3). Default 2.
	MaxReferenceDuplicateDepth int `yaml:"max_reference_duplicate_depth"`

	// MaxRetryCount bounds pending-enhancement retry chains (§4.3e). Default 3.
	MaxRetryCount int `yaml:"max_retry_count"`

	// DefaultESPercolationChunkSize chunks changesets fed to the percolator
	// (§4.6), with optional per-operation overrides.
	DefaultESPercolationChunkSize int            `yaml:"default_es_percolation_chunk_size"`
	ESPercolationChunkSizeOverrides map[string]int `yaml:"es_percolation_chunk_size_overrides"`

	// DefaultUploadFileChunkSize bounds streamed blob upload chunk size,
	// with optional per-operation overrides.
	DefaultUploadFileChunkSize      int            `yaml:"default_upload_file_chunk_size"`
	UploadFileChunkSizeOverrides    map[string]int `yaml:"upload_file_chunk_size_overrides"`

	DefaultBlobLocation  string `yaml:"default_blob_location"`
	DefaultBlobContainer string `yaml:"default_blob_container"`

	PresignedURLExpirySeconds int `yaml:"presigned_url_expiry_seconds"`

	// FeatureFlags holds named boolean toggles; spec.md names "deduplication".
	FeatureFlags map[string]bool `yaml:"feature_flags"`

	// SinglyProjectedAnnotationKeys is the registry of annotation keys
	// extracted separately during SearchFieldsProjection (§4.9, §9 open
	// question — treated as configuration with a compile-time default).
	SinglyProjectedAnnotationKeys []string `yaml:"singly_projected_annotation_keys"`

	// DefaultLeaseDurationSeconds is a server-side default lease (§4.3b).
	// The robot poll handler does not read it: it applies its own
	// ten-minute default when a poll request omits a lease.
	DefaultLeaseDurationSeconds int `yaml:"default_lease_duration_seconds"`

	// LeaseSweepIntervalSeconds paces the expiry sweeper (§4.3e, §5).
	LeaseSweepIntervalSeconds int `yaml:"lease_sweep_interval_seconds"`

	// CallbackMaxRetries bounds the batch-summary callback's transport
	// retries (§4.4, §7). Default 2.
	CallbackMaxRetries int `yaml:"callback_max_retries"`

	// ConfidentDuplicateScore is the fingerprint relevance threshold above
	// which a candidate is treated as a confident duplicate (§4.2 phase C).
	ConfidentDuplicateScore float64 `yaml:"confident_duplicate_score"`

	// FingerprintCandidateLimit bounds how many candidates the search
	// index returns for a fingerprint query (§4.2 phase B, "up to N").
	FingerprintCandidateLimit int `yaml:"fingerprint_candidate_limit"`

	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig mirrors the teacher's internal/database.Config shape.
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
}

// ConnectionString builds a libpq-style DSN, omitting password when unset.
func (c DatabaseConfig) ConnectionString() string {
	s := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s", c.Host, c.Port, c.User, c.Database, c.SSLMode)
	if c.Password != "" {
		s += " password=" + c.Password
	}
	return s
}

// DefaultConfig returns the compiled-in defaults, matching spec.md §6's
// named defaults (depth 2, retry 3) plus reasonable operational defaults
// for the options spec.md leaves unspecified.
func DefaultConfig() *Config {
	return &Config{
		TrustedUniqueIdentifierTypes:  []string{"doi", "pmid", "openalex"},
		MaxReferenceDuplicateDepth:    2,
		MaxRetryCount:                 3,
		DefaultESPercolationChunkSize: 100,
		ESPercolationChunkSizeOverrides: map[string]int{},
		DefaultUploadFileChunkSize:    1 << 20, // 1MiB
		UploadFileChunkSizeOverrides:  map[string]int{},
		DefaultBlobLocation:           "default",
		DefaultBlobContainer:          "references",
		PresignedURLExpirySeconds:     3600,
		FeatureFlags:                  map[string]bool{"deduplication": true},
		SinglyProjectedAnnotationKeys: []string{"inclusion:destiny"},
		DefaultLeaseDurationSeconds:   600,
		LeaseSweepIntervalSeconds:     60,
		CallbackMaxRetries:            2,
		ConfidentDuplicateScore:       0.85,
		FingerprintCandidateLimit:     10,
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "refrepo",
			Database:     "reference_repository",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
	}
}

// LoadFromEnv overlays recognized environment variables on top of an
// existing config, leaving unset/invalid values untouched.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		c.Database.SSLMode = v
	}
	if v := os.Getenv("MAX_REFERENCE_DUPLICATE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxReferenceDuplicateDepth = n
		}
	}
	if v := os.Getenv("MAX_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetryCount = n
		}
	}
	if v := os.Getenv("TRUSTED_UNIQUE_IDENTIFIER_TYPES"); v != "" {
		c.TrustedUniqueIdentifierTypes = strings.Split(v, ",")
	}
}

// LoadFile reads a YAML config file on top of DefaultConfig, then applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sharederr.FailedToWithDetails("read config file", "config", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, sharederr.ParseError(path, "YAML", err)
	}
	cfg.LoadFromEnv()
	return cfg, cfg.Validate()
}

// Validate checks invariants on the config, matching the teacher's
// Config.Validate pattern (plain errors naming the bad field).
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return sharederr.ConfigurationError("database.host", "value is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return sharederr.ConfigurationError("database.port", "must be between 1 and 65535")
	}
	if c.Database.User == "" {
		return sharederr.ConfigurationError("database.user", "value is required")
	}
	if c.Database.Database == "" {
		return sharederr.ConfigurationError("database.database", "value is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return sharederr.ConfigurationError("database.max_open_conns", "must be greater than 0")
	}
	if c.Database.MaxIdleConns < 0 {
		return sharederr.ConfigurationError("database.max_idle_conns", "must be non-negative")
	}
	if c.MaxReferenceDuplicateDepth < 1 {
		return sharederr.ConfigurationError("max_reference_duplicate_depth", "must be at least 1")
	}
	if c.MaxRetryCount < 0 {
		return sharederr.ConfigurationError("max_retry_count", "must be non-negative")
	}
	if c.ConfidentDuplicateScore <= 0 {
		return sharederr.ConfigurationError("confident_duplicate_score", "must be positive")
	}
	if c.FingerprintCandidateLimit < 1 {
		return sharederr.ConfigurationError("fingerprint_candidate_limit", "must be at least 1")
	}
	return nil
}

// FeatureEnabled reports whether a named feature flag is on.
func (c *Config) FeatureEnabled(name string) bool {
	return c.FeatureFlags[name]
}

// IsTrustedIdentifierType reports whether identifierType bypasses full
// dedup per §4.2 phase C.
func (c *Config) IsTrustedIdentifierType(identifierType string) bool {
	for _, t := range c.TrustedUniqueIdentifierTypes {
		if t == identifierType {
			return true
		}
	}
	return false
}

// ESPercolationChunkSize resolves the per-operation override, falling back
// to the default.
func (c *Config) ESPercolationChunkSize(operation string) int {
	if n, ok := c.ESPercolationChunkSizeOverrides[operation]; ok {
		return n
	}
	return c.DefaultESPercolationChunkSize
}

// UploadFileChunkSize resolves the per-operation override, falling back to
// the default.
func (c *Config) UploadFileChunkSize(operation string) int {
	if n, ok := c.UploadFileChunkSizeOverrides[operation]; ok {
		return n
	}
	return c.DefaultUploadFileChunkSize
}

// Live wraps a Config in an atomic holder and watches its source file for
// changes with fsnotify, so long-running workers observe updated feature
// flags and trusted-identifier-type sets without a restart.
type Live struct {
	path    string
	current atomic.Pointer[Config]
	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLive loads path once and starts watching it for writes.
func NewLive(path string) (*Live, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	l := &Live{path: path}
	l.current.Store(cfg)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, sharederr.FailedTo("start config watcher", err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, sharederr.FailedToWithDetails("watch config file", "config", path, err)
	}
	l.watcher = w

	go l.watch()
	return l, nil
}

func (l *Live) watch() {
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			l.mu.Lock()
			if cfg, err := LoadFile(l.path); err == nil {
				l.current.Store(cfg)
			}
			l.mu.Unlock()
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Get returns the most recently loaded config.
func (l *Live) Get() *Config {
	return l.current.Load()
}

// Close stops the file watcher.
func (l *Live) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
