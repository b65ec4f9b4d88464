package service

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"dunning_backend/internal/campaigns/repository"
	"dunning_backend/platform/apperr"
)

//go:embed presets.yaml
var presetsYAML []byte

// DefaultPreset is the ladder used for auto-created campaigns.
const DefaultPreset = "standard"

// Preset is a ready-made campaign configuration.
type Preset struct {
	MaxAttempts       int                `yaml:"maxAttempts"`
	DaysBetweenEmails int                `yaml:"daysBetweenEmails"`
	EscalateTone      bool               `yaml:"escalateTone"`
	Stages            []repository.Stage `yaml:"stages"`
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

var presets = mustLoadPresets()

func mustLoadPresets() map[string]Preset {
	var f presetFile
	if err := yaml.Unmarshal(presetsYAML, &f); err != nil {
		panic(fmt.Sprintf("parse campaign presets: %v", err))
	}
	if _, ok := f.Presets[DefaultPreset]; !ok {
		panic("campaign presets missing the standard preset")
	}
	return f.Presets
}

// PresetByName returns the named preset.
func PresetByName(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, apperr.Validation(fmt.Sprintf("unknown campaign preset %q", name))
	}
	return p, nil
}

// PresetNames lists the available presets, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
