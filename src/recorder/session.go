// Package recorder owns the lifecycle of one screen recording: video
// acquisition, compositing, chunked encoding, audio mixing and final
// container assembly. The recording process is resident and reused across
// recordings, so every start tears the previous session down first.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"

	"snapcap/src/audio"
	"snapcap/src/capture"
	"snapcap/src/compositor"
	"snapcap/src/encoder"
	"snapcap/src/platform"
	"snapcap/src/settings"
)

var (
	// ErrAcquisition means the primary video source could not be acquired.
	// Audio acquisition failures degrade instead of raising this.
	ErrAcquisition = errors.New("source acquisition failed")
	// ErrEmptyOutput means the session finalized with zero encoded bytes;
	// callers must not write a file for it.
	ErrEmptyOutput = errors.New("recording produced no data")
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// encoderSession is the slice of encoder.Encoder the manager drives.
type encoderSession interface {
	Start() error
	WriteFrame(*image.RGBA) error
	Stop() error
}

// displaySource feeds the compositor fresh stills of a display. A capture
// failure on one tick reads as "paused" and the tick is skipped.
type displaySource struct {
	sourceID int
}

func (d *displaySource) Frame() (*image.RGBA, bool) {
	img, err := capture.StillFrame(d.sourceID)
	if err != nil {
		return nil, false
	}
	return img, true
}

// Manager runs at most one recording session at a time.
type Manager struct {
	mu     sync.Mutex
	state  State
	chunks [][]byte

	caps  platform.Capabilities
	enc   encoderSession
	mixer *audio.Mixer

	cancelTick context.CancelFunc
	tickDone   chan struct{}

	// Seams for tests; production wiring is the zero value.
	newEncoder    func(cfg encoder.Config, onChunk encoder.OnChunk) encoderSession
	newSource     func(sourceID int) compositor.Source
	resolveSource func(region capture.Region) int
	acquireAudio  func(kind audio.SourceKind) (audio.Track, error)
	muxAudio      func(videoPath, pcmPath, outPath string) error
}

// New creates an idle manager.
func New(caps platform.Capabilities) *Manager {
	m := &Manager{caps: caps}
	m.newEncoder = func(cfg encoder.Config, onChunk encoder.OnChunk) encoderSession {
		return encoder.New(cfg, onChunk)
	}
	m.newSource = func(sourceID int) compositor.Source {
		return &displaySource{sourceID: sourceID}
	}
	m.resolveSource = func(region capture.Region) int {
		sources, err := capture.ListSources()
		if err != nil {
			return 0
		}
		return capture.SourceIDFor(sources, region)
	}
	m.acquireAudio = func(kind audio.SourceKind) (audio.Track, error) {
		return audio.Acquire(kind, caps)
	}
	m.muxAudio = func(videoPath, pcmPath, outPath string) error {
		return encoder.MuxAudio(videoPath, pcmPath, outPath, audio.SampleRate)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start acquires sources and begins recording the given region. Any
// previous session is torn down first; the teardown succeeds even when
// there is nothing to tear down.
func (m *Manager) Start(region capture.Region, set settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
	m.state = StateStarting

	if !region.Valid() {
		m.state = StateIdle
		return fmt.Errorf("%w: region %dx%d below minimum", ErrAcquisition, region.Width, region.Height)
	}

	fps := set.FrameRate
	if fps <= 0 {
		fps = compositor.DefaultFrameRate
	}

	// Record the display the region was drawn on, not always the
	// primary.
	src := m.newSource(m.resolveSource(region))
	if probe, ok := src.(*displaySource); ok {
		if _, err := capture.DisplayBounds(probe.sourceID); err != nil {
			m.state = StateIdle
			return fmt.Errorf("%w: %v", ErrAcquisition, err)
		}
	}

	scale := region.ScaleFactor
	comp := compositor.New(src, sinkFunc(m.writeFrame), region, scale, fps)
	w, h := comp.Size()

	enc := m.newEncoder(encoder.Config{Width: w, Height: h, FrameRate: fps}, m.appendChunk)
	if err := enc.Start(); err != nil {
		m.state = StateIdle
		return fmt.Errorf("%w: encoder: %v", ErrAcquisition, err)
	}
	m.enc = enc

	m.mixer = audio.NewMixer()
	if track, err := m.acquireAudio(audio.SourceKind(set.AudioSource)); err != nil {
		// Audio is optional: keep recording video-only.
		log.Printf("recorder: audio source %q unavailable, recording without audio: %v", set.AudioSource, err)
	} else if err := m.mixer.Attach(track); err != nil {
		log.Printf("recorder: %v", err)
	}
	m.mixer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTick = cancel
	m.tickDone = make(chan struct{})
	go func(c *compositor.Compositor) {
		defer close(m.tickDone)
		if err := c.Run(ctx); err != nil {
			log.Printf("recorder: compositor stopped with error: %v", err)
		}
	}(comp)

	m.state = StateRecording
	log.Printf("recorder: session started %dx%d@%dfps audio=%s", w, h, fps, set.AudioSource)
	return nil
}

type sinkFunc func(*image.RGBA) error

func (f sinkFunc) WriteFrame(img *image.RGBA) error { return f(img) }

func (m *Manager) writeFrame(img *image.RGBA) error {
	m.mu.Lock()
	enc := m.enc
	m.mu.Unlock()
	if enc == nil {
		return nil
	}
	return enc.WriteFrame(img)
}

func (m *Manager) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		log.Printf("recorder: warning: encoder emitted empty chunk")
		return
	}
	m.mu.Lock()
	m.chunks = append(m.chunks, chunk)
	m.mu.Unlock()
}

// Stop finalizes the session and returns the finished container buffer.
// Calling Stop with no active session logs a warning and no-ops: stop may
// race a prior natural completion and must stay idempotent.
func (m *Manager) Stop() ([]byte, error) {
	m.mu.Lock()
	if m.state != StateRecording {
		m.mu.Unlock()
		log.Printf("recorder: stop requested but no session is active")
		return nil, nil
	}
	m.state = StateStopping
	cancel, tickDone, enc, mixer := m.cancelTick, m.tickDone, m.enc, m.mixer
	m.cancelTick, m.tickDone, m.enc, m.mixer = nil, nil, nil, nil
	m.mu.Unlock()

	// Teardown order matters: halt the tick loop, then let the encoder
	// flush and exit (the finalize barrier), then stop the audio tracks.
	if cancel != nil {
		cancel()
	}
	if tickDone != nil {
		<-tickDone
	}
	var encErr error
	if enc != nil {
		encErr = enc.Stop()
	}
	var pcm []byte
	if mixer != nil {
		mixer.Stop()
		pcm = mixer.PCM()
	}

	m.mu.Lock()
	buffer := concat(m.chunks)
	m.chunks = nil
	m.state = StateIdle
	m.mu.Unlock()

	if encErr != nil {
		return nil, encErr
	}
	if len(buffer) == 0 {
		return nil, ErrEmptyOutput
	}
	if len(pcm) > 0 {
		merged, err := m.mergeAudio(buffer, pcm)
		if err != nil {
			log.Printf("recorder: audio mux failed, delivering video-only: %v", err)
		} else {
			buffer = merged
		}
	}
	log.Printf("recorder: session finalized, %d bytes", len(buffer))
	return buffer, nil
}

// mergeAudio muxes the mixed PCM into the finalized video container.
func (m *Manager) mergeAudio(video, pcm []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "snapcap-mux-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	videoPath := filepath.Join(dir, "video."+encoder.NativeContainer)
	pcmPath := filepath.Join(dir, "audio.pcm")
	outPath := filepath.Join(dir, "out."+encoder.NativeContainer)
	if err := os.WriteFile(videoPath, video, 0o600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(pcmPath, pcm, 0o600); err != nil {
		return nil, err
	}
	if err := m.muxAudio(videoPath, pcmPath, outPath); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// teardownLocked resets the manager to a clean idle baseline. Safe to
// call repeatedly and with nothing running; every exit path ends here so
// a failed session can never leave a stuck state behind.
func (m *Manager) teardownLocked() {
	cancel, tickDone, enc, mixer := m.cancelTick, m.tickDone, m.enc, m.mixer
	m.cancelTick, m.tickDone, m.enc, m.mixer = nil, nil, nil, nil
	m.chunks = nil
	m.state = StateIdle
	if cancel == nil && tickDone == nil && enc == nil && mixer == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	// Waiting and stopping can take time and the callbacks re-acquire the
	// lock, so release it around the blocking part.
	m.mu.Unlock()
	if tickDone != nil {
		<-tickDone
	}
	if enc != nil {
		_ = enc.Stop()
	}
	if mixer != nil {
		mixer.Stop()
	}
	m.mu.Lock()
}

func concat(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total == 0 {
		return nil
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
