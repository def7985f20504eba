// Package am loads ctxeng configuration ("am" as in "I am configured as...").
//
// Values cascade from built-in defaults through system, user and project
// am.toml files to CTXENG_* environment variables, highest last.
package am

// Config represents the ctxeng configuration
type Config struct {
	SchemaVersion string           `mapstructure:"schema_version"`
	Database      DatabaseConfig   `mapstructure:"database"`
	Server        ServerConfig     `mapstructure:"server"`
	OpenRouter    OpenRouterConfig `mapstructure:"openrouter"`
	Keystore      KeystoreConfig   `mapstructure:"keystore"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the web server
type ServerConfig struct {
	Port              *int     `mapstructure:"port"` // nil = DefaultServerPort, 0 is invalid
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	SessionTTLMinutes int      `mapstructure:"session_ttl_minutes"` // idle browser sessions are dropped after this
	SendsPerMinute    int      `mapstructure:"sends_per_minute"`    // per session; 0 = unlimited
	OpenBrowser       bool     `mapstructure:"open_browser"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey         string `mapstructure:"api_key"`  // fallback for the CLI when no tier holds a key
	BaseURL        string `mapstructure:"base_url"` // e.g. "https://openrouter.ai/api/v1"
	Model          string `mapstructure:"model"`    // default model id
	Referer        string `mapstructure:"referer"`  // HTTP-Referer for CLI sends
	Title          string `mapstructure:"title"`    // X-Title header
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// KeystoreConfig selects the local credential tiers used by the CLI
type KeystoreConfig struct {
	Durable  bool `mapstructure:"durable"`   // sqlite kv_store row
	UserFile bool `mapstructure:"user_file"` // ~/.ctxeng/credentials.toml
}

// Server port constants
const (
	DefaultServerPort  = 8820 // Development port
	FallbackServerPort = 8821 // Tried when the configured port is taken
)

// SchemaVersion is the configuration layout this build understands.
const SchemaVersion = "1.0.0"

// SchemaConstraint accepts any 1.x configuration.
const SchemaConstraint = "^1.0.0"

// File system constants
const (
	DefaultDirPermissions  = 0o755
	DefaultFilePermissions = 0o644
)
