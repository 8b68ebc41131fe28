// Package config loads service configuration from environment variables.
// Defaults apply to unset values and the result is validated on startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Mapping  MappingConfig
	Stream   StreamConfig
	Upload   UploadConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings. The URL is optional:
// without it the service validates documents but cannot import them.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// MappingConfig controls how cells become field values.
type MappingConfig struct {
	Trim          bool `env:"MAPPING_TRIM" default:"true"`
	SkipEmptyRows bool `env:"MAPPING_SKIP_EMPTY_ROWS" default:"true"`

	DateFormat     string `env:"MAPPING_DATE_FORMAT" default:"2006-01-02"`
	DateTimeFormat string `env:"MAPPING_DATETIME_FORMAT" default:"2006-01-02 15:04:05"`
	TimeFormat     string `env:"MAPPING_TIME_FORMAT" default:"15:04:05"`

	// HeaderRow is the zero-based row holding the headers.
	HeaderRow int `env:"MAPPING_HEADER_ROW" default:"0"`

	// Delimiter overrides the CSV separator. "tab" selects a tab.
	Delimiter string `env:"MAPPING_DELIMITER"`

	// Charset names the text encoding of CSV uploads, e.g. windows-1252.
	Charset string `env:"MAPPING_CHARSET"`

	// OverridesFile is a YAML file of header aliases per record kind.
	OverridesFile string `env:"MAPPING_OVERRIDES"`
}

// StreamConfig tunes the streaming reader used for imports.
type StreamConfig struct {
	QueueSize    int           `env:"STREAM_QUEUE_SIZE" default:"100"`
	StallTimeout time.Duration `env:"STREAM_STALL_TIMEOUT" default:"60s"`
	JoinTimeout  time.Duration `env:"STREAM_JOIN_TIMEOUT" default:"5s"`
	BatchSize    int           `env:"STREAM_BATCH_SIZE" default:"1000"`

	// Threshold is the workbook size in bytes above which reads stream.
	Threshold int64 `env:"STREAM_THRESHOLD" default:"10485760"`
}

// UploadConfig holds upload handling settings.
type UploadConfig struct {
	MaxFileSize   int64         `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`
	MaxConcurrent int           `env:"UPLOAD_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
	Timeout       time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
