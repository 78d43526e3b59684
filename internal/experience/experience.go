// Package experience loads and validates experience definitions.
//
// An experience is the designer-authored description of a guest flow: the
// step list, their order, and run settings. Definitions are stored as YAML
// and compiled into an engine configuration.
package experience

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/boothlabs/boothflow/internal/models"
)

// Settings holds the run settings of an experience definition.
type Settings struct {
	PersistSession bool `yaml:"persistSession"`
	AllowBack      bool `yaml:"allowBack"`
	AllowSkip      bool `yaml:"allowSkip"`
}

// Definition is the YAML shape of an experience.
type Definition struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Steps      []models.Step  `yaml:"steps"`
	StepsOrder []string       `yaml:"stepsOrder"`
	Settings   Settings       `yaml:"settings"`
	Theme      map[string]any `yaml:"theme"`
}

// Parse decodes and validates an experience definition from YAML bytes.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse experience definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Parsed experience definition", "experienceID", def.ID, "steps", len(def.Steps))
	return &def, nil
}

// LoadFile reads and parses an experience definition from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experience file %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid experience file %s: %w", path, err)
	}
	return def, nil
}

// LoadDir parses every .yaml/.yml experience definition in a directory,
// keyed by experience id.
func LoadDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read experience directory %s: %w", dir, err)
	}

	defs := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := defs[def.ID]; exists {
			return nil, fmt.Errorf("duplicate experience id %s in %s", def.ID, entry.Name())
		}
		defs[def.ID] = def
	}
	slog.Info("Loaded experience definitions", "dir", dir, "count", len(defs))
	return defs, nil
}

// Validate checks the definition's identity, steps, and ordering.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("experience id is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("experience %s has no steps", d.ID)
	}
	for i := range d.Steps {
		if err := d.Steps[i].Validate(); err != nil {
			return fmt.Errorf("experience %s step %s: %w", d.ID, d.Steps[i].ID, err)
		}
	}
	if err := models.ValidateSequence(d.Steps, d.StepsOrder); err != nil {
		return fmt.Errorf("experience %s: %w", d.ID, err)
	}
	return nil
}

// EngineConfig compiles the definition into an engine configuration.
// Identity fields and callbacks are the caller's to fill in.
func (d *Definition) EngineConfig() models.EngineConfig {
	return models.EngineConfig{
		ExperienceID:   d.ID,
		Steps:          d.Steps,
		StepsOrder:     d.StepsOrder,
		PersistSession: d.Settings.PersistSession,
		AllowBack:      d.Settings.AllowBack,
		AllowSkip:      d.Settings.AllowSkip,
		Theme:          d.Theme,
	}
}
