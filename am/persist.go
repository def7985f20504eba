package am

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/ctxeng/errors"
)

// backupCount is how many rotating backups SetUserValue keeps.
const backupCount = 3

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	for i := backupCount; i > 1; i-- {
		older := backupPath(configPath, i)
		newer := backupPath(configPath, i-1)
		if err := os.Remove(older); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove %s", older)
		}
		if _, err := os.Stat(newer); err == nil {
			if err := os.Rename(newer, older); err != nil {
				return errors.Wrapf(err, "failed to rotate %s", newer)
			}
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(backupPath(configPath, 1), content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

func backupPath(configPath string, n int) string {
	return configPath + ".back" + string(rune('0'+n))
}

// SetUserValue writes key (dotted) = value into the user config file,
// keeping rotating backups of the previous content.
func SetUserValue(key string, value interface{}) error {
	path := UserConfigPath()
	if path == "" {
		return errors.New("could not determine home directory")
	}
	return setValue(path, key, value)
}

func setValue(path, key string, value interface{}) error {
	if _, known := settingKeys()[key]; !known {
		return errors.WithHint(
			errors.NewInvalidRequestError("unknown setting %q", key),
			"run 'ctxeng am where' to list settings",
		)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	config := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
	}

	parts := strings.Split(key, ".")
	section := config
	for _, p := range parts[:len(parts)-1] {
		next, ok := section[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			section[p] = next
		}
		section = next
	}
	section[parts[len(parts)-1]] = value

	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}
	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// settingKeys returns every dotted key that has a default.
func settingKeys() map[string]struct{} {
	v := newDefaultsViper()
	keys := make(map[string]struct{})
	for _, k := range flattenKeys(v.AllSettings(), "") {
		keys[k] = struct{}{}
	}
	keys["openrouter.api_key"] = struct{}{}
	return keys
}

// ParseValue converts a command-line string to the type of key's default:
// integers, booleans, and comma-separated lists. Anything else stays a string.
func ParseValue(key, raw string) (interface{}, error) {
	def := newDefaultsViper().Get(key)
	switch def.(type) {
	case int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.NewInvalidRequestError("%s expects an integer, got %q", key, raw)
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.NewInvalidRequestError("%s expects true or false, got %q", key, raw)
		}
		return b, nil
	case []string:
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	}
	return raw, nil
}
