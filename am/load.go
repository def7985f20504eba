package am

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/ctxeng/errors"
)

// EnvPrefix prefixes every environment override (CTXENG_SERVER_PORT, ...).
const EnvPrefix = "CTXENG"

// SystemConfigPath is the lowest-precedence config file.
var SystemConfigPath = "/etc/ctxeng/am.toml"

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
	mergedFiles   []string

	// ConfigSources records, per dotted key, which file last set it.
	ConfigSources = map[string]SourceInfo{}
)

// Load reads the ctxeng configuration using Viper. The result is cached until Reset.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path over the defaults.
// Environment variables are not consulted.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %s", configPath)
	}
	return cfg, nil
}

// Reset clears the cached configuration (useful for testing and reloads)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	mergedFiles = nil
	ConfigSources = map[string]SourceInfo{}
}

// MergedFiles returns the config files that were found and merged, lowest
// precedence first.
func MergedFiles() []string {
	mu.Lock()
	defer mu.Unlock()
	initViper()
	return append([]string(nil), mergedFiles...)
}

// UserDir returns ~/.ctxeng, or "" when the home directory is unknown.
func UserDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ctxeng")
}

// UserConfigPath returns ~/.ctxeng/am.toml.
func UserConfigPath() string {
	dir := UserDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "am.toml")
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold mu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)

	mergedFiles, ConfigSources = mergeConfigFiles(v, candidateFiles())

	viperInstance = v
	return v
}

type candidate struct {
	path   string
	source ConfigSource
}

// candidateFiles lists config files in precedence order: system < user < project.
func candidateFiles() []candidate {
	files := []candidate{{SystemConfigPath, SourceSystem}}
	if p := UserConfigPath(); p != "" {
		files = append(files, candidate{p, SourceUser})
	}
	if wd, err := os.Getwd(); err == nil {
		if p := findProjectConfig(wd); p != "" {
			files = append(files, candidate{p, SourceProject})
		}
	}
	return files
}

// findProjectConfig walks up from dir looking for am.toml.
func findProjectConfig(dir string) string {
	for {
		path := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges each existing file into v's config layer, so
// environment variables still win, and records where each key came from.
// Unreadable files are skipped.
func mergeConfigFiles(v *viper.Viper, files []candidate) ([]string, map[string]SourceInfo) {
	var merged []string
	sources := make(map[string]SourceInfo)
	seen := make(map[string]bool)

	for _, f := range files {
		abs, err := filepath.Abs(f.path)
		if err == nil && seen[abs] {
			continue
		}
		seen[abs] = true

		if _, err := os.Stat(f.path); err != nil {
			continue
		}
		fileViper := viper.New()
		fileViper.SetConfigFile(f.path)
		fileViper.SetConfigType("toml")
		if err := fileViper.ReadInConfig(); err != nil {
			continue
		}

		settings := fileViper.AllSettings()
		if err := v.MergeConfigMap(settings); err != nil {
			continue
		}
		merged = append(merged, f.path)
		for _, key := range flattenKeys(settings, "") {
			sources[key] = SourceInfo{Source: f.source, Path: f.path}
		}
	}
	return merged, sources
}

// flattenKeys returns the dotted leaf keys of a nested settings map, sorted.
func flattenKeys(settings map[string]interface{}, prefix string) []string {
	var keys []string
	for k, val := range settings {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := val.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(nested, full)...)
			continue
		}
		keys = append(keys, full)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}
