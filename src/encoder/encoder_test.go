package encoder

import (
	"image"
	"strings"
	"testing"
)

func TestEncodeArgs(t *testing.T) {
	args := encodeArgs(Config{Width: 640, Height: 480, FrameRate: 30})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-f rawvideo",
		"-pixel_format rgba",
		"-video_size 640x480",
		"-framerate 30",
		"-i pipe:0",
		"-pix_fmt yuv420p",
		"-f matroska pipe:1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("encode args missing %q in %q", want, joined)
		}
	}
}

func TestMuxArgsMapBothStreams(t *testing.T) {
	args := muxArgs("video.mkv", "audio.pcm", "out.mkv", 44100)
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-f s16le -ar 44100 -ac 1 -i audio.pcm",
		"-map 0:v -map 1:a",
		"-c:v copy",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("mux args missing %q in %q", want, joined)
		}
	}
}

func TestTranscodeArgsPerFormat(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"webm", "-c:v libvpx-vp9"},
		{"mp4", "-movflags +faststart"},
		{"mkv", "-c copy"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			joined := strings.Join(transcodeArgs("in.mkv", "out."+tt.format, tt.format), " ")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("transcode args for %s missing %q in %q", tt.format, tt.want, joined)
			}
			if !strings.HasSuffix(joined, "out."+tt.format) {
				t.Errorf("destination must be the last argument: %q", joined)
			}
		})
	}
}

func TestWriteFrameRejectsGeometryMismatch(t *testing.T) {
	e := New(Config{Width: 100, Height: 100, FrameRate: 30}, func([]byte) {})
	err := e.WriteFrame(image.NewRGBA(image.Rect(0, 0, 50, 50)))
	if err == nil {
		t.Fatal("expected error for mismatched frame size")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	e := New(Config{Width: 100, Height: 100, FrameRate: 30}, func([]byte) {})
	if err := e.Stop(); err != nil {
		t.Errorf("Stop on unstarted encoder = %v, want nil", err)
	}
}
