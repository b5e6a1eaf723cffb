package audio

import (
	"fmt"
	"log"
	"sync"
)

// Mixer combines every attached track into one PCM stream. Raw tracks are
// never handed to the encoder directly: the mixer output is the only copy
// attached to the recording, which keeps a system-audio loopback from
// being duplicated into an echo.
type Mixer struct {
	mu      sync.Mutex
	tracks  []Track
	buffers [][]int16
	wg      sync.WaitGroup
	started bool
}

func NewMixer() *Mixer { return &Mixer{} }

// Attach registers a track. Attaching the same track twice is refused so
// a stream can never be mixed in two copies.
func (m *Mixer) Attach(t Track) error {
	if t == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("mixer: cannot attach %s after start", t.Name())
	}
	for _, existing := range m.tracks {
		if existing == t {
			return fmt.Errorf("mixer: track %s already attached", t.Name())
		}
	}
	m.tracks = append(m.tracks, t)
	m.buffers = append(m.buffers, nil)
	return nil
}

// TrackCount returns how many tracks are attached.
func (m *Mixer) TrackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

// Start begins all tracks and drains their sample streams. A track that
// fails to start is dropped with a warning; the rest keep recording.
func (m *Mixer) Start() {
	m.mu.Lock()
	m.started = true
	tracks := make([]Track, len(m.tracks))
	copy(tracks, m.tracks)
	m.mu.Unlock()

	for i, t := range tracks {
		if err := t.Start(); err != nil {
			log.Printf("mixer: track %s failed to start, continuing without it: %v", t.Name(), err)
			continue
		}
		m.wg.Add(1)
		go func(idx int, t Track) {
			defer m.wg.Done()
			for chunk := range t.Samples() {
				m.mu.Lock()
				m.buffers[idx] = append(m.buffers[idx], chunk...)
				m.mu.Unlock()
			}
		}(i, t)
	}
}

// Stop halts every track and waits for the drains to finish.
func (m *Mixer) Stop() {
	m.mu.Lock()
	tracks := make([]Track, len(m.tracks))
	copy(tracks, m.tracks)
	m.mu.Unlock()

	for _, t := range tracks {
		_ = t.Stop()
	}
	m.wg.Wait()
}

// PCM returns the mixed stream as s16le bytes. Call after Stop. Returns
// nil when no track produced any samples.
func (m *Mixer) PCM() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	mixed := mixBuffers(m.buffers)
	if len(mixed) == 0 {
		return nil
	}
	return samplesToBytes(mixed)
}

// mixBuffers sums the tracks sample-wise with clipping, out to the
// longest track.
func mixBuffers(buffers [][]int16) []int16 {
	maxLen := 0
	for _, b := range buffers {
		if len(b) > maxLen {
			maxLen = len(b)
		}
	}
	if maxLen == 0 {
		return nil
	}
	out := make([]int16, maxLen)
	for i := 0; i < maxLen; i++ {
		var sum int32
		for _, b := range buffers {
			if i < len(b) {
				sum += int32(b[i])
			}
		}
		out[i] = clip(sum)
	}
	return out
}

func clip(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
