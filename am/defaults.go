package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultAllowedOrigins are the browser origins trusted when none are configured.
var DefaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("schema_version", SchemaVersion)

	v.SetDefault("database.path", "ctxeng.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", DefaultAllowedOrigins)
	v.SetDefault("server.session_ttl_minutes", 24*60)
	v.SetDefault("server.sends_per_minute", 10)
	v.SetDefault("server.open_browser", true)

	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "anthropic/claude-3.5-sonnet")
	v.SetDefault("openrouter.referer", "http://localhost")
	v.SetDefault("openrouter.title", "Context Engineer")
	v.SetDefault("openrouter.timeout_seconds", 120)

	v.SetDefault("keystore.durable", true)
	v.SetDefault("keystore.user_file", true)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "CTXENG_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("database.path", "CTXENG_DATABASE_PATH")
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "ctxeng.db"
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return DefaultAllowedOrigins
	}
	return c.Server.AllowedOrigins
}

// GetSessionTTL returns the browser session idle timeout; 0 keeps sessions forever
func (c *Config) GetSessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLMinutes) * time.Minute
}

// GetOpenRouterTimeout returns the per-send timeout
func (c *Config) GetOpenRouterTimeout() time.Duration {
	if c.OpenRouter.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.OpenRouter.TimeoutSeconds) * time.Second
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, OpenRouter: {Model: %s}}",
		c.GetDatabasePath(), c.GetServerPort(), c.OpenRouter.Model)
}

// newDefaultsViper returns a viper holding only the built-in defaults.
func newDefaultsViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}
