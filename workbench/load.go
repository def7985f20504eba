package workbench

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
)

// Format names a context file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", errors.WithHint(
		errors.NewInvalidRequestError("unsupported context file %q", filepath.Base(path)),
		"use .yaml, .yml, .json or .toml",
	)
}

// LoadContextFile reads a context from path. "-" reads YAML (a superset of
// JSON) from stdin.
func LoadContextFile(path string, log *zap.SugaredLogger) (assemble.Context, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return assemble.Context{}, errors.Wrap(err, "read context from stdin")
		}
		return DecodeContext(data, FormatYAML, log)
	}

	format, err := FormatFromPath(path)
	if err != nil {
		return assemble.Context{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return assemble.Context{}, errors.Wrapf(err, "read context file %s", path)
	}
	c, err := DecodeContext(data, format, log)
	if err != nil {
		return assemble.Context{}, errors.Wrapf(err, "load %s", path)
	}
	return c, nil
}

// DecodeContext parses data in the given format. Unknown fields are rejected
// for YAML and JSON; TOML logs them and carries on.
func DecodeContext(data []byte, format Format, log *zap.SugaredLogger) (assemble.Context, error) {
	log = logger.OrNop(log)
	var c assemble.Context

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && err != io.EOF {
			return assemble.Context{}, invalidFile(err, format)
		}

	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return assemble.Context{}, invalidFile(err, format)
		}

	case FormatTOML:
		meta, err := toml.Decode(string(data), &c)
		if err != nil {
			return assemble.Context{}, invalidFile(err, format)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			log.Warnw("Ignoring unknown keys in context file", "keys", keys)
		}

	default:
		return assemble.Context{}, errors.NewInvalidRequestError("unknown context format %q", format)
	}

	return c, nil
}

func invalidFile(err error, format Format) error {
	return errors.Mark(
		errors.WithHint(errors.Wrapf(err, "invalid %s context", format),
			"fields are persona, initialPrompt, backgroundContext, examples (input/output), outputFormat, rules"),
		errors.ErrInvalidRequest,
	)
}
