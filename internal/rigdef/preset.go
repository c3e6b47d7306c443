package rigdef

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed presets/*.yaml
var presets embed.FS

// ErrUnknownPreset is returned for a preset name with no embedded file.
var ErrUnknownPreset = errors.New("unknown preset")

// DefaultPreset is the preset used when none is named.
const DefaultPreset = "mouth"

// Presets lists the embedded preset names.
func Presets() []string {
	entries, err := fs.ReadDir(presets, "presets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// PresetSource returns the raw YAML of a preset.
func PresetSource(name string) ([]byte, error) {
	data, err := presets.ReadFile(path.Join("presets", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return data, nil
}

// Preset parses an embedded preset.
func Preset(name string) (*Definition, error) {
	data, err := PresetSource(name)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", name, err)
	}
	return def, nil
}
