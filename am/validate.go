package am

import (
	"net/url"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/ctxeng/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := checkSchemaVersion(c.SchemaVersion); err != nil {
		return err
	}

	// Server port: nil = default, 0 and out-of-range values are invalid
	if c.Server.Port != nil {
		if *c.Server.Port == 0 {
			return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
		}
		if *c.Server.Port < 0 || *c.Server.Port > 65535 {
			return errors.Newf("server.port must be between 1 and 65535, got %d", *c.Server.Port)
		}
	}

	if c.Server.SessionTTLMinutes < 0 {
		return errors.Newf("server.session_ttl_minutes must be >= 0, got %d", c.Server.SessionTTLMinutes)
	}
	if c.Server.SendsPerMinute < 0 {
		return errors.Newf("server.sends_per_minute must be >= 0, got %d", c.Server.SendsPerMinute)
	}

	if c.OpenRouter.TimeoutSeconds <= 0 {
		return errors.Newf("openrouter.timeout_seconds must be > 0, got %d", c.OpenRouter.TimeoutSeconds)
	}
	if c.OpenRouter.BaseURL != "" {
		u, err := url.Parse(c.OpenRouter.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.WithHint(
				errors.Newf("openrouter.base_url %q is not an http(s) URL", c.OpenRouter.BaseURL),
				"the default is https://openrouter.ai/api/v1",
			)
		}
	}

	return nil
}

// checkSchemaVersion accepts an empty version (treated as current) or any
// version satisfying SchemaConstraint.
func checkSchemaVersion(raw string) error {
	if raw == "" {
		return nil
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return errors.Wrapf(err, "schema_version %q is not a semantic version", raw)
	}
	constraint, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return errors.Wrap(err, "invalid schema constraint")
	}
	if !constraint.Check(v) {
		return errors.WithHintf(
			errors.Newf("schema_version %s is not supported", v),
			"this build reads configuration %s", SchemaConstraint,
		)
	}
	return nil
}
