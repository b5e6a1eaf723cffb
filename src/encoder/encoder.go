// Package encoder drives ffmpeg as the media encoder: raw composited
// frames go in on stdin, the native container comes back on stdout as an
// incremental chunk stream. Finalize (mux) and transcode are separate
// short-lived invocations.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os/exec"
	"strconv"
)

var (
	ErrEncoding  = errors.New("encoding failed")
	ErrTranscode = errors.New("transcode failed")
)

// NativeContainer is the container the live encoder emits. Other formats
// are produced by transcoding afterwards.
const NativeContainer = "mkv"

const chunkSize = 64 * 1024

// Config fixes the encoder's input geometry for the whole session.
type Config struct {
	Width     int
	Height    int
	FrameRate int
}

// OnChunk receives encoded chunks as they become available. Called from
// the encoder's reader goroutine; the callback must not block for long.
type OnChunk func([]byte)

// Encoder is one live encoding session.
type Encoder struct {
	cfg       Config
	onChunk   OnChunk
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	done      chan error
	frameSize int
}

// New prepares an encoder; Start launches the process.
func New(cfg Config, onChunk OnChunk) *Encoder {
	return &Encoder{
		cfg:       cfg,
		onChunk:   onChunk,
		done:      make(chan error, 1),
		frameSize: cfg.Width * cfg.Height * 4,
	}
}

// Start launches ffmpeg and begins draining chunks.
func (e *Encoder) Start() error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("%w: ffmpeg not found in PATH", ErrEncoding)
	}
	e.cmd = exec.Command(path, encodeArgs(e.cfg)...)
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	var stderr bytes.Buffer
	e.cmd.Stderr = &stderr
	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	e.stdin = stdin

	go func() {
		buf := make([]byte, chunkSize)
		for {
			n, rerr := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				e.onChunk(chunk)
			}
			if rerr != nil {
				break
			}
		}
		werr := e.cmd.Wait()
		if werr != nil {
			log.Printf("encoder: ffmpeg exited: %v: %s", werr, stderr.String())
			e.done <- fmt.Errorf("%w: %v", ErrEncoding, werr)
			return
		}
		e.done <- nil
	}()
	return nil
}

// WriteFrame feeds one raw RGBA frame. The frame must match the
// configured geometry; the destination buffer the compositor hands over
// is fixed-size, so a mismatch means a programming error.
func (e *Encoder) WriteFrame(img *image.RGBA) error {
	if img.Bounds().Dx() != e.cfg.Width || img.Bounds().Dy() != e.cfg.Height {
		return fmt.Errorf("%w: frame %dx%d does not match session %dx%d",
			ErrEncoding, img.Bounds().Dx(), img.Bounds().Dy(), e.cfg.Width, e.cfg.Height)
	}
	if _, err := e.stdin.Write(img.Pix[:e.frameSize]); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return nil
}

// Stop closes the frame stream and blocks until ffmpeg has flushed and
// exited. This wait is the ordering barrier: once Stop returns, every
// chunk has been delivered and the container is finalized.
func (e *Encoder) Stop() error {
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	if e.cmd == nil {
		return nil
	}
	return <-e.done
}

func encodeArgs(cfg Config) []string {
	size := strconv.Itoa(cfg.Width) + "x" + strconv.Itoa(cfg.Height)
	rate := strconv.Itoa(cfg.FrameRate)
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", size,
		"-framerate", rate,
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-f", "matroska",
		"pipe:1",
	}
}

// MuxAudio combines a finalized native video file with a raw PCM track
// (s16le mono) into a new container file.
func MuxAudio(videoPath, pcmPath, outPath string, sampleRate int) error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("%w: ffmpeg not found in PATH", ErrEncoding)
	}
	cmd := exec.Command(path, muxArgs(videoPath, pcmPath, outPath, sampleRate)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: mux: %v: %s", ErrEncoding, err, stderr.String())
	}
	return nil
}

func muxArgs(videoPath, pcmPath, outPath string, sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", videoPath,
		"-f", "s16le", "-ar", strconv.Itoa(sampleRate), "-ac", "1", "-i", pcmPath,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-f", "matroska",
		outPath,
	}
}

// Transcode rewraps or re-encodes a native file into the requested
// container. Callers treat failure as non-fatal and keep the native file.
func Transcode(srcPath, dstPath, format string) error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("%w: ffmpeg not found in PATH", ErrTranscode)
	}
	cmd := exec.Command(path, transcodeArgs(srcPath, dstPath, format)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrTranscode, err, stderr.String())
	}
	return nil
}

func transcodeArgs(srcPath, dstPath, format string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", srcPath}
	switch format {
	case "webm":
		args = append(args, "-c:v", "libvpx-vp9", "-c:a", "libopus")
	case "mp4":
		args = append(args, "-c", "copy", "-movflags", "+faststart")
	default:
		args = append(args, "-c", "copy")
	}
	return append(args, dstPath)
}
