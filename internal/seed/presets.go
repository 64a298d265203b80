package seed

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// LoadPresets parses a presets document: a map of preset name to Options.
func LoadPresets(raw []byte) (map[string]Options, error) {
	presets := map[string]Options{}
	if err := yaml.Unmarshal(raw, &presets); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	return presets, nil
}

// PresetNames lists the built-in presets in alphabetical order.
func PresetNames() []string {
	presets, err := LoadPresets(presetsYAML)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset replaces the seeder options with the named built-in preset and runs it.
// Clean and dry-run choices made by the caller are kept.
func (s *Seeder) ApplyPreset(ctx context.Context, name string) error {
	presets, err := LoadPresets(presetsYAML)
	if err != nil {
		return err
	}
	preset, ok := presets[name]
	if !ok {
		return fmt.Errorf("unknown preset %q (available: %v)", name, PresetNames())
	}
	preset.ShouldClean = preset.ShouldClean || s.opts.ShouldClean
	preset.DryRun = s.opts.DryRun
	if preset.RandSeed == 0 {
		preset.RandSeed = s.opts.RandSeed
	}

	applied := NewSeeder(s.db, preset)
	*s = *applied
	return s.Run(ctx)
}
