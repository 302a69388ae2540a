package usecases

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// ThemerPlugin is a themer bound to its settings. Lookups are map based and
// a plugin holds no state beyond its settings.
type ThemerPlugin interface {
	Definition() domain.ThemerDefinition
	// Classify returns the feature's classification key; "" means unclassified.
	Classify(f domain.GeoFeature, e *domain.Entity) (string, error)
	IconFor(key string) (string, bool)
	Legend(cfg domain.LegendConfig) (domain.LegendTable, error)
}

// ThemerFactory binds settings to a new plugin instance.
type ThemerFactory func(def domain.ThemerDefinition, settings domain.ThemerSettings) (ThemerPlugin, error)

// ThemerRegistry holds the themer definitions known at startup plus any
// named presets.
type ThemerRegistry struct {
	mu        sync.RWMutex
	defs      map[string]domain.ThemerDefinition
	factories map[string]ThemerFactory
	presets   map[string]domain.ThemerSelection
}

// NewThemerRegistry creates an empty registry.
func NewThemerRegistry() *ThemerRegistry {
	return &ThemerRegistry{
		defs:      make(map[string]domain.ThemerDefinition),
		factories: make(map[string]ThemerFactory),
		presets:   make(map[string]domain.ThemerSelection),
	}
}

// NewDefaultRegistry returns a registry with the built-in themers.
func NewDefaultRegistry() *ThemerRegistry {
	r := NewThemerRegistry()
	for _, b := range builtinThemers {
		if err := r.Register(b.def, b.factory); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a themer. IDs are unique.
func (r *ThemerRegistry) Register(def domain.ThemerDefinition, factory ThemerFactory) error {
	if def.ID == "" {
		return errors.New("themer: empty id")
	}
	if factory == nil {
		return fmt.Errorf("themer %s: nil factory", def.ID)
	}
	switch def.Arity {
	case domain.AritySingleValue, domain.ArityKeyValue, domain.ArityInterval:
	default:
		return fmt.Errorf("themer %s: unknown arity %q", def.ID, def.Arity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[def.ID]; dup {
		return fmt.Errorf("themer %s: already registered", def.ID)
	}
	r.defs[def.ID] = def
	r.factories[def.ID] = factory
	return nil
}

// Get returns the factory for id.
func (r *ThemerRegistry) Get(id string) (ThemerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// Definition returns the definition for id.
func (r *ThemerRegistry) Definition(id string) (domain.ThemerDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

// List returns every definition sorted by ID.
func (r *ThemerRegistry) List() []domain.ThemerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ThemerDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Instantiate binds settings to the themer id. Failures are *domain.PluginError.
func (r *ThemerRegistry) Instantiate(id string, settings domain.ThemerSettings) (ThemerPlugin, error) {
	r.mu.RLock()
	def, ok := r.defs[id]
	factory := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.PluginError{PluginID: id, Op: "instantiate", Err: domain.ErrUnknownThemer}
	}
	p, err := factory(def, settings)
	if err != nil {
		return nil, &domain.PluginError{PluginID: id, Op: "instantiate", Err: err}
	}
	return p, nil
}

// AddPreset stores a named selection.
func (r *ThemerRegistry) AddPreset(name string, sel domain.ThemerSelection) error {
	if name == "" {
		return errors.New("themer preset: empty name")
	}
	if _, ok := r.Definition(sel.PluginID); !ok {
		return &domain.PluginError{PluginID: sel.PluginID, Op: "preset " + name, Err: domain.ErrUnknownThemer}
	}
	r.mu.Lock()
	r.presets[name] = sel
	r.mu.Unlock()
	return nil
}

// Preset returns a named selection.
func (r *ThemerRegistry) Preset(name string) (domain.ThemerSelection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sel, ok := r.presets[name]
	return sel, ok
}

// Presets returns the preset names, sorted.
func (r *ThemerRegistry) Presets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.presets))
	for n := range r.presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type presetFile struct {
	Presets []struct {
		Name                   string `yaml:"name"`
		domain.ThemerSelection `yaml:",inline"`
	} `yaml:"presets"`
}

// LoadPresets reads named selections from a YAML file.
func (r *ThemerRegistry) LoadPresets(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read themer presets: %w", err)
	}
	return r.ParsePresets(data)
}

// ParsePresets reads named selections from YAML.
func (r *ThemerRegistry) ParsePresets(data []byte) (int, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse themer presets: %w", err)
	}
	for _, p := range f.Presets {
		if err := r.AddPreset(p.Name, p.ThemerSelection); err != nil {
			return 0, err
		}
	}
	return len(f.Presets), nil
}
