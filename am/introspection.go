package am

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/ctxeng/am.toml
	SourceUser        ConfigSource = "user"        // ~/.ctxeng/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found walking up from the working directory
	SourceEnvironment ConfigSource = "environment" // CTXENG_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource // The type of config source
	Path   string       // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key" toml:"key"`
	Value      interface{}  `json:"value" yaml:"value" toml:"value"`
	Source     ConfigSource `json:"source" yaml:"source" toml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty" toml:"source_path,omitempty"`
}

// ConfigIntrospection provides metadata about the active configuration
type ConfigIntrospection struct {
	Files    []string      `json:"files" yaml:"files" toml:"files"` // merged files, lowest precedence first
	Settings []SettingInfo `json:"settings" yaml:"settings" toml:"settings"`
}

// GetConfigIntrospection reports every effective setting with its source.
// Secrets are masked.
func GetConfigIntrospection() *ConfigIntrospection {
	v := GetViper()

	mu.Lock()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, s := range ConfigSources {
		sources[k] = s
	}
	files := append([]string(nil), mergedFiles...)
	mu.Unlock()

	return &ConfigIntrospection{
		Files:    files,
		Settings: settingsWithSources(MaskSecrets(v.AllSettings()), sources, os.Getenv),
	}
}

// settingsWithSources flattens settings and attaches their sources. An
// environment variable that is set overrides any file source.
func settingsWithSources(settings map[string]interface{}, sources map[string]SourceInfo, getenv func(string) string) []SettingInfo {
	keys := flattenKeys(settings, "")
	sort.Strings(keys)

	out := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if s, ok := sources[key]; ok {
			info = s
		}
		if env := EnvKey(key); getenv(env) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: env}
		}
		out = append(out, SettingInfo{
			Key:        key,
			Value:      lookupDotted(settings, key),
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return out
}

// EnvKey returns the environment variable that overrides a dotted key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func lookupDotted(settings map[string]interface{}, key string) interface{} {
	parts := strings.Split(key, ".")
	var cur interface{} = settings
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
