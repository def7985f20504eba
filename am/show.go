package am

import (
	"encoding/json"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
)

// secretKeys are masked wherever configuration is displayed.
var secretKeys = map[string]bool{
	"openrouter.api_key": true,
}

// MaskSecrets returns a deep copy of settings with secret values masked.
func MaskSecrets(settings map[string]interface{}) map[string]interface{} {
	return maskSecrets(settings, "")
}

func maskSecrets(settings map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, val := range settings {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		switch typed := val.(type) {
		case map[string]interface{}:
			out[k] = maskSecrets(typed, full)
		case string:
			if secretKeys[full] && typed != "" {
				out[k] = keystore.MaskCredential(typed)
			} else {
				out[k] = typed
			}
		default:
			out[k] = val
		}
	}
	return out
}

// Render encodes v as toml, json or yaml.
func Render(v interface{}, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "toml":
		return toml.Marshal(v)
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(v)
	}
	return nil, errors.WithHint(
		errors.NewInvalidRequestError("unknown output format %q", format),
		"use toml, json or yaml",
	)
}

// Show renders the effective configuration with secrets masked.
func Show(format string) ([]byte, error) {
	return Render(MaskSecrets(GetViper().AllSettings()), format)
}
