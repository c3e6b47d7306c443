package rig

import "sync"

// WeightTrack is the per-frame weight history of one target. It is what a
// keyframing layer consumes.
type WeightTrack struct {
	Target    string    `yaml:"target"`
	FrameRate float32   `yaml:"frame_rate"`
	Samples   []float32 `yaml:"samples"`
}

// Recorder samples target weights once per evaluated frame.
type Recorder struct {
	mu        sync.Mutex
	frameRate float32
	frames    int
	tracks    map[string]*WeightTrack
	order     []string
}

// NewRecorder creates a recorder for frames evaluated at frameRate per second.
func NewRecorder(frameRate float32) *Recorder {
	return &Recorder{frameRate: frameRate, tracks: make(map[string]*WeightTrack)}
}

// Record appends one sample per target. A target first seen mid-recording is
// back-filled with zeros; a target missing from the frame repeats its last
// sample.
func (rec *Recorder) Record(frame *Frame) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	seen := make(map[string]bool, len(frame.Weights))
	for _, w := range frame.Weights {
		seen[w.Name] = true
		tr, ok := rec.tracks[w.Name]
		if !ok {
			tr = &WeightTrack{
				Target:    w.Name,
				FrameRate: rec.frameRate,
				Samples:   make([]float32, rec.frames, rec.frames+1),
			}
			rec.tracks[w.Name] = tr
			rec.order = append(rec.order, w.Name)
		}
		tr.Samples = append(tr.Samples, w.Weight)
	}
	for _, name := range rec.order {
		if seen[name] {
			continue
		}
		tr := rec.tracks[name]
		var last float32
		if n := len(tr.Samples); n > 0 {
			last = tr.Samples[n-1]
		}
		tr.Samples = append(tr.Samples, last)
	}
	rec.frames++
}

// Frames returns the number of recorded frames.
func (rec *Recorder) Frames() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.frames
}

// Tracks returns copies of all tracks in first-seen order.
func (rec *Recorder) Tracks() []WeightTrack {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make([]WeightTrack, len(rec.order))
	for i, name := range rec.order {
		tr := rec.tracks[name]
		out[i] = WeightTrack{
			Target:    tr.Target,
			FrameRate: tr.FrameRate,
			Samples:   append([]float32(nil), tr.Samples...),
		}
	}
	return out
}
