// Package catalog holds the model list and example contexts shipped with
// ctxeng. Both are embedded YAML so they can be edited without touching code.
package catalog

import (
	"embed"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/errors"
)

//go:embed data/*.yaml
var data embed.FS

// DefaultModelID is selected when nothing else is.
const DefaultModelID = "anthropic/claude-3.5-sonnet"

// Model is one selectable model.
type Model struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Popular     bool   `yaml:"popular,omitempty" json:"popular,omitempty"`
	Free        bool   `yaml:"free,omitempty" json:"free,omitempty"`
	Provider    string `yaml:"-" json:"provider"`
}

// Provider groups models under a display heading.
type Provider struct {
	Name   string  `yaml:"name" json:"name"`
	Models []Model `yaml:"models" json:"models"`
}

// Models is the full catalog.
type Models struct {
	Default   string     `yaml:"default" json:"default"`
	Providers []Provider `yaml:"providers" json:"providers"`
}

// Preset is a ready-made example context.
type Preset struct {
	Key     string           `yaml:"key" json:"key"`
	Name    string           `yaml:"name" json:"name"`
	Context assemble.Context `yaml:"context" json:"context"`
}

var (
	loadOnce sync.Once
	models   *Models
	presets  []Preset
	loadErr  error
)

func load() {
	loadOnce.Do(func() {
		models, loadErr = parseModels()
		if loadErr != nil {
			return
		}
		presets, loadErr = parsePresets()
	})
}

func parseModels() (*Models, error) {
	raw, err := data.ReadFile("data/models.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded models")
	}
	var m Models
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "parse embedded models")
	}
	if len(m.Providers) == 0 {
		return nil, errors.New("embedded model catalog is empty")
	}
	for i := range m.Providers {
		for j := range m.Providers[i].Models {
			m.Providers[i].Models[j].Provider = m.Providers[i].Name
		}
	}
	if m.Default == "" {
		m.Default = DefaultModelID
	}
	return &m, nil
}

func parsePresets() ([]Preset, error) {
	raw, err := data.ReadFile("data/presets.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded presets")
	}
	var p []Preset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "parse embedded presets")
	}
	return p, nil
}

// Load returns the catalog, or the error from decoding the embedded data.
func Load() (*Models, error) {
	load()
	return models, loadErr
}

// MustLoad is Load for callers that treat a broken embed as a build defect.
func MustLoad() *Models {
	m, err := Load()
	if err != nil {
		panic(err)
	}
	return m
}

// All returns every model, flattened in display order.
func (m *Models) All() []Model {
	var out []Model
	for _, p := range m.Providers {
		out = append(out, p.Models...)
	}
	return out
}

// Lookup finds a model by id. Unknown ids fall back to the first model in the
// catalog and report false.
func (m *Models) Lookup(id string) (Model, bool) {
	all := m.All()
	for _, model := range all {
		if model.ID == id {
			return model, true
		}
	}
	return all[0], false
}

// DefaultModel returns the catalog's default model entry.
func (m *Models) DefaultModel() Model {
	model, _ := m.Lookup(m.Default)
	return model
}

// ByProvider returns the models of one provider, matched case-insensitively.
func (m *Models) ByProvider(name string) ([]Model, bool) {
	for _, p := range m.Providers {
		if strings.EqualFold(p.Name, name) {
			return p.Models, true
		}
	}
	return nil, false
}

// ProviderNames lists providers in display order.
func (m *Models) ProviderNames() []string {
	names := make([]string, len(m.Providers))
	for i, p := range m.Providers {
		names[i] = p.Name
	}
	return names
}

// Presets returns the example contexts in display order.
func Presets() ([]Preset, error) {
	load()
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]Preset, len(presets))
	for i, p := range presets {
		p.Context.Examples = append([]assemble.Example(nil), p.Context.Examples...)
		p.Context.Rules = append([]string(nil), p.Context.Rules...)
		out[i] = p
	}
	return out, nil
}

// FindPreset matches key or display name case-insensitively.
func FindPreset(name string) (Preset, error) {
	all, err := Presets()
	if err != nil {
		return Preset{}, err
	}
	for _, p := range all {
		if strings.EqualFold(p.Key, name) || strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}

	keys := make([]string, len(all))
	for i, p := range all {
		keys[i] = p.Key
	}
	sort.Strings(keys)
	return Preset{}, errors.WithHintf(
		errors.Mark(errors.Newf("unknown preset %q", name), errors.ErrNotFound),
		"available presets: %s", strings.Join(keys, ", "),
	)
}
