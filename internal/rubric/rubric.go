// Package rubric holds the preset rubrics offered in the grading form.
package rubric

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultPresets []byte

// ErrUnknownPreset is returned by Get for ids not in the library.
var ErrUnknownPreset = errors.New("unknown rubric preset")

// Preset is a named rubric teachers can pick instead of pasting one.
type Preset struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	AssignmentType string `yaml:"assignment_type" json:"assignment_type"`
	Text           string `yaml:"text" json:"text"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Library is an immutable set of presets.
type Library struct {
	byID   map[string]Preset
	sorted []Preset
}

// Parse builds a Library from YAML.
func Parse(data []byte) (*Library, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rubric presets: %w", err)
	}
	lib := &Library{byID: make(map[string]Preset, len(f.Presets))}
	for i, p := range f.Presets {
		p.ID = strings.TrimSpace(p.ID)
		p.Text = strings.TrimSpace(p.Text)
		if p.ID == "" {
			return nil, fmt.Errorf("rubric preset #%d has no id", i+1)
		}
		if p.Text == "" {
			return nil, fmt.Errorf("rubric preset %q has no text", p.ID)
		}
		if _, dup := lib.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate rubric preset id %q", p.ID)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		lib.byID[p.ID] = p
		lib.sorted = append(lib.sorted, p)
	}
	sort.Slice(lib.sorted, func(i, j int) bool {
		return lib.sorted[i].Name < lib.sorted[j].Name
	})
	return lib, nil
}

// Load reads presets from path, or the built-in set when path is empty.
func Load(path string) (*Library, error) {
	if path == "" {
		return Parse(defaultPresets)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric presets: %w", err)
	}
	return Parse(data)
}

// Get returns the preset with id.
func (l *Library) Get(id string) (Preset, error) {
	if l != nil {
		if p, ok := l.byID[strings.TrimSpace(id)]; ok {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
}

// List returns presets ordered by name.
func (l *Library) List() []Preset {
	if l == nil {
		return nil
	}
	out := make([]Preset, len(l.sorted))
	copy(out, l.sorted)
	return out
}
