package keystore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/ctxeng/errors"
)

// FileTier keeps values in a flat TOML table on disk, readable only by the
// owning user. Used by the CLI where there is no browser.
type FileTier struct {
	name string
	path string
	mu   sync.Mutex
}

// NewFileTier returns a tier persisting to path under the given tier name.
func NewFileTier(name, path string) *FileTier {
	return &FileTier{name: name, path: path}
}

// Name implements Tier.
func (t *FileTier) Name() string { return t.name }

// Path returns the backing file location.
func (t *FileTier) Path() string { return t.path }

// Set implements Tier.
func (t *FileTier) Set(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	values, err := t.load()
	if err != nil {
		return err
	}
	values[key] = value
	return t.save(values)
}

// Get implements Tier.
func (t *FileTier) Get(key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	values, err := t.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Remove implements Tier.
func (t *FileTier) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	values, err := t.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return t.save(values)
}

func (t *FileTier) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", t.path)
	}
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrapf(err, "parse %s", t.path)
	}
	return values, nil
}

// save writes atomically via a sibling temp file.
func (t *FileTier) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return errors.Wrapf(err, "create directory for %s", t.path)
	}
	data, err := toml.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "encode values")
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".keystore-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		return errors.Wrapf(err, "replace %s", t.path)
	}
	return nil
}
