// Package audio acquires microphone and system-audio tracks and mixes
// them into a single PCM stream for the recording session.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"

	"github.com/gordonklaus/portaudio"

	"snapcap/src/platform"
)

const (
	// SampleRate is the session-wide PCM rate (s16le mono).
	SampleRate = 44100

	framesPerBuffer = 1024
)

var (
	ErrPermissionDenied = errors.New("audio permission denied")
	ErrNoDevice         = errors.New("no audio device available")
)

// SourceKind selects which audio goes into a recording.
type SourceKind string

const (
	SourceNone   SourceKind = "none"
	SourceSystem SourceKind = "system"
	SourceMic    SourceKind = "mic"
)

// Track is one live PCM source. Samples delivers chunks until Stop.
type Track interface {
	Start() error
	Stop() error
	Samples() <-chan []int16
	Name() string
}

// Acquire returns a track for the requested kind, or (nil, nil) for
// SourceNone. Callers degrade gracefully on error: a failed audio track
// never aborts the recording.
func Acquire(kind SourceKind, caps platform.Capabilities) (Track, error) {
	switch kind {
	case SourceNone, "":
		return nil, nil
	case SourceMic:
		if !caps.MicSupported {
			return nil, fmt.Errorf("%w: microphone", ErrNoDevice)
		}
		return newMicTrack(), nil
	case SourceSystem:
		if !caps.SystemAudioSupported() {
			return nil, fmt.Errorf("%w: system audio loopback", ErrNoDevice)
		}
		return newSystemTrack(caps.SystemAudioArgs), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", kind)
	}
}

// micTrack captures the default input device through portaudio.
type micTrack struct {
	stream *portaudio.Stream
	out    chan []int16
	stop   chan struct{}
	once   sync.Once
}

func newMicTrack() *micTrack {
	return &micTrack{out: make(chan []int16, 16), stop: make(chan struct{})}
}

func (m *micTrack) Name() string { return "mic" }

func (m *micTrack) Samples() <-chan []int16 { return m.out }

func (m *micTrack) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), framesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	m.stream = stream

	go func() {
		defer close(m.out)
		for {
			select {
			case <-m.stop:
				return
			default:
			}
			if err := stream.Read(); err != nil {
				log.Printf("audio: mic read ended: %v", err)
				return
			}
			chunk := make([]int16, len(buf))
			copy(chunk, buf)
			select {
			case m.out <- chunk:
			case <-m.stop:
				return
			}
		}
	}()
	return nil
}

func (m *micTrack) Stop() error {
	m.once.Do(func() {
		close(m.stop)
		if m.stream != nil {
			_ = m.stream.Stop()
			_ = m.stream.Close()
		}
		_ = portaudio.Terminate()
	})
	return nil
}

// systemTrack captures the desktop's audio output via an ffmpeg loopback
// device, emitting s16le mono samples.
type systemTrack struct {
	deviceArgs []string
	cmd        *exec.Cmd
	out        chan []int16
	once       sync.Once
}

func newSystemTrack(deviceArgs []string) *systemTrack {
	return &systemTrack{deviceArgs: deviceArgs, out: make(chan []int16, 16)}
}

func (s *systemTrack) Name() string { return "system" }

func (s *systemTrack) Samples() <-chan []int16 { return s.out }

func (s *systemTrack) Start() error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("%w: ffmpeg not found for system audio", ErrNoDevice)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, s.deviceArgs...)
	args = append(args, "-ar", fmt.Sprint(SampleRate), "-ac", "1", "-f", "s16le", "pipe:1")
	s.cmd = exec.Command(path, args...)
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	go func() {
		defer close(s.out)
		buf := make([]byte, framesPerBuffer*2)
		for {
			n, rerr := io.ReadFull(stdout, buf)
			if n > 0 {
				s.out <- bytesToSamples(buf[:n&^1])
			}
			if rerr != nil {
				return
			}
		}
	}()
	return nil
}

func (s *systemTrack) Stop() error {
	s.once.Do(func() {
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
	})
	return nil
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func samplesToBytes(s []int16) []byte {
	var buf bytes.Buffer
	buf.Grow(len(s) * 2)
	for _, v := range s {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	}
	return buf.Bytes()
}
