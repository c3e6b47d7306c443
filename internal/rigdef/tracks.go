package rigdef

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/facerig/internal/rig"
)

// TrackFile is the on-disk form of a recorded weight animation.
type TrackFile struct {
	Timeline string            `yaml:"timeline,omitempty"`
	Tracks   []rig.WeightTrack `yaml:"tracks"`
}

// SaveTracks writes recorded weight tracks as YAML.
func SaveTracks(path string, tf *TrackFile) error {
	data, err := yaml.Marshal(tf)
	if err != nil {
		return fmt.Errorf("marshal tracks: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write tracks: %w", err)
	}
	return nil
}

// LoadTracks reads a file written by SaveTracks.
func LoadTracks(path string) (*TrackFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tracks: %w", err)
	}
	var tf TrackFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse tracks: %w", err)
	}
	return &tf, nil
}
