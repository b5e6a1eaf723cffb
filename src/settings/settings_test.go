package settings

import (
	"os"
	"testing"
)

func TestLoadFromEnvironment(t *testing.T) {
	os.Setenv("SAVE_PATH", "/tmp/captures")
	os.Setenv("IMAGE_FORMAT", "jpeg")
	os.Setenv("VIDEO_FORMAT", "webm")
	os.Setenv("AUDIO_SOURCE", "mic")
	os.Setenv("FRAME_RATE", "24")
	os.Setenv("KEYMAP", "alternate")
	os.Setenv("ENABLE_FILE_LOGGING", "true")
	defer func() {
		os.Unsetenv("SAVE_PATH")
		os.Unsetenv("IMAGE_FORMAT")
		os.Unsetenv("VIDEO_FORMAT")
		os.Unsetenv("AUDIO_SOURCE")
		os.Unsetenv("FRAME_RATE")
		os.Unsetenv("KEYMAP")
		os.Unsetenv("ENABLE_FILE_LOGGING")
	}()

	set, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.SavePath != "/tmp/captures" {
		t.Errorf("SavePath = %q, want /tmp/captures", set.SavePath)
	}
	if set.ImageFormat != "jpeg" {
		t.Errorf("ImageFormat = %q, want jpeg", set.ImageFormat)
	}
	if set.VideoFormat != "webm" {
		t.Errorf("VideoFormat = %q, want webm", set.VideoFormat)
	}
	if set.AudioSource != AudioMic {
		t.Errorf("AudioSource = %q, want mic", set.AudioSource)
	}
	if set.FrameRate != 24 {
		t.Errorf("FrameRate = %d, want 24", set.FrameRate)
	}
	if set.Keymap != KeymapAlternate {
		t.Errorf("Keymap = %q, want alternate", set.Keymap)
	}
	if !set.EnableFileLogging {
		t.Error("EnableFileLogging = false, want true")
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SAVE_PATH", "IMAGE_FORMAT", "VIDEO_FORMAT", "AUDIO_SOURCE", "FRAME_RATE", "KEYMAP", "ENABLE_FILE_LOGGING"} {
		os.Unsetenv(key)
	}

	set, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.SavePath == "" {
		t.Error("SavePath default must not be empty")
	}
	if set.ImageFormat != "png" {
		t.Errorf("ImageFormat default = %q, want png", set.ImageFormat)
	}
	if set.VideoFormat != "mkv" {
		t.Errorf("VideoFormat default = %q, want mkv", set.VideoFormat)
	}
	if set.AudioSource != AudioNone {
		t.Errorf("AudioSource default = %q, want none", set.AudioSource)
	}
	if set.FrameRate != DefaultFrameRate {
		t.Errorf("FrameRate default = %d, want %d", set.FrameRate, DefaultFrameRate)
	}
	if set.Keymap != KeymapStandard {
		t.Errorf("Keymap default = %q, want standard", set.Keymap)
	}
}

func TestResolveFrameRateRejectsNonsense(t *testing.T) {
	cases := map[string]int{
		"":     DefaultFrameRate,
		"0":    DefaultFrameRate,
		"-5":   DefaultFrameRate,
		"999":  DefaultFrameRate,
		"abc":  DefaultFrameRate,
		"60":   60,
		"1":    1,
		" 25 ": 25,
	}
	for in, want := range cases {
		if got := resolveFrameRate(in); got != want {
			t.Errorf("resolveFrameRate(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestResolveKeymap(t *testing.T) {
	cases := map[string]string{
		"":            KeymapStandard,
		"standard":    KeymapStandard,
		"ALT":         KeymapAlternate,
		"alternate":   KeymapAlternate,
		"alternative": KeymapAlternate,
		"bogus":       KeymapStandard,
	}
	for in, want := range cases {
		if got := ResolveKeymap(in); got != want {
			t.Errorf("ResolveKeymap(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveAudioSource(t *testing.T) {
	cases := map[string]string{
		"system":     AudioSystem,
		"mic":        AudioMic,
		"microphone": AudioMic,
		"none":       AudioNone,
		"":           AudioNone,
		"speaker":    AudioNone,
	}
	for in, want := range cases {
		if got := resolveAudioSource(in); got != want {
			t.Errorf("resolveAudioSource(%q) = %q, want %q", in, got, want)
		}
	}
}
