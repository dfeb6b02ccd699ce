// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SOAPConfig holds connection settings for the municipal cadastral SOAP service.
type SOAPConfig struct {
	// Endpoint is the SOAP service URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Username and Password are the HTTP Basic auth credentials.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// MonitorCPF is the monitoring identifier sent in every request envelope.
	MonitorCPF string `json:"monitor_cpf" yaml:"monitor_cpf"`

	// Timeout is the per-request HTTP timeout (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retry rounds across all candidate
	// operation names (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BackoffFactor is the base delay between retry rounds; round n sleeps
	// BackoffFactor × n, capped at BackoffMax (defaults 1s / 10s).
	BackoffFactor time.Duration `json:"backoff_factor" yaml:"backoff_factor"`
	BackoffMax    time.Duration `json:"backoff_max" yaml:"backoff_max"`
}

// ExtractionConfig holds settings for the extraction run.
type ExtractionConfig struct {
	// FirstCode and LastCode bound the cadastral code space to cover.
	FirstCode int `json:"first_code" yaml:"first_code"`
	LastCode  int `json:"last_code" yaml:"last_code"`

	// IntervalSize is the requested codes-per-query interval, clamped to
	// MaxIntervalSize (the source API's hard per-call limit, default 100).
	IntervalSize    int `json:"interval_size" yaml:"interval_size"`
	MaxIntervalSize int `json:"max_interval_size" yaml:"max_interval_size"`

	// SaveInterval is the number of accumulated records between partial
	// snapshots (default 250). Zero disables checkpointing.
	SaveInterval int `json:"save_interval" yaml:"save_interval"`

	// RequestDelay is the pause between consecutive fetches (default 150ms).
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay"`

	// FetchModules enables the per-record sub-module fan-out (owners,
	// addresses, frontages, zoning, attachments, history, ...).
	FetchModules bool `json:"fetch_modules" yaml:"fetch_modules"`

	// CacheDir is the directory for per-interval cache files.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// DataDir is the base directory for snapshot output (contains json/).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// DatabaseConfig holds settings for the relational destination.
type DatabaseConfig struct {
	// Driver selects the database/sql driver: "pgx" or "sqlite3".
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the connection string (PostgreSQL URL or SQLite file path).
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// Schema is the PostgreSQL schema namespace (ignored for SQLite).
	Schema string `json:"schema" yaml:"schema"`
}

// PipelineConfig groups all component configurations.
type PipelineConfig struct {
	SOAP       SOAPConfig       `json:"soap" yaml:"soap"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
}
