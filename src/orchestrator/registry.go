package orchestrator

import (
	"fmt"
	"sync"
)

// Phase is the process-wide capture state. Exactly one operation owns the
// overlay or the recorder at a time; everything else is refused as busy.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseCapturing
	PhaseRecording
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelecting:
		return "selecting"
	case PhaseCapturing:
		return "capturing"
	case PhaseRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Registry tracks the current phase with explicit transitions. Every
// teardown path, error paths included, must land back on Reset.
type Registry struct {
	mu    sync.Mutex
	phase Phase
}

func NewRegistry() *Registry { return &Registry{} }

// Phase returns the current phase.
func (r *Registry) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Recording reports whether a recording session owns the process.
func (r *Registry) Recording() bool {
	return r.Phase() == PhaseRecording
}

// BeginSelecting claims the overlay. Only allowed from idle.
func (r *Registry) BeginSelecting() error {
	return r.transition(PhaseIdle, PhaseSelecting)
}

// BeginCapturing moves a confirmed selection into still-output work.
func (r *Registry) BeginCapturing() error {
	return r.transition(PhaseSelecting, PhaseCapturing)
}

// BeginRecording moves a confirmed selection into an active recording.
func (r *Registry) BeginRecording() error {
	return r.transition(PhaseSelecting, PhaseRecording)
}

// Reset returns to idle from any phase.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.phase = PhaseIdle
	r.mu.Unlock()
}

func (r *Registry) transition(from, to Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != from {
		return fmt.Errorf("busy: %s", r.phase)
	}
	r.phase = to
	return nil
}
