// Package settings loads the application settings from a .env file next
// to the executable plus the process environment. Settings are read once
// at the start of a capture or recording operation and stay immutable for
// its duration; operations never observe a mid-flight change.
package settings

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// ConfigPathEnvVar points at an alternate .env file when no .env sits
	// next to the executable.
	ConfigPathEnvVar = "SNAPCAP_CONFIG"

	KeymapStandard  = "standard"
	KeymapAlternate = "alternate"

	AudioNone   = "none"
	AudioSystem = "system"
	AudioMic    = "mic"

	DefaultFrameRate = 30
	maxFrameRate     = 60
)

type Settings struct {
	SavePath          string
	ImageFormat       string
	VideoFormat       string
	AudioSource       string
	FrameRate         int
	Keymap            string
	EnableFileLogging bool
}

func Load() (Settings, error) {
	// Priority order:
	// 1) .env in the executable's directory
	// 2) a file named by SNAPCAP_CONFIG
	// 3) the process environment
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	set := Settings{
		SavePath:          resolveSavePath(os.Getenv("SAVE_PATH")),
		ImageFormat:       resolveImageFormat(os.Getenv("IMAGE_FORMAT")),
		VideoFormat:       resolveVideoFormat(os.Getenv("VIDEO_FORMAT")),
		AudioSource:       resolveAudioSource(os.Getenv("AUDIO_SOURCE")),
		FrameRate:         resolveFrameRate(os.Getenv("FRAME_RATE")),
		Keymap:            ResolveKeymap(os.Getenv("KEYMAP")),
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
	}
	return set, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}
	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return ""
}

func resolveSavePath(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Pictures")
}

func resolveImageFormat(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "jpeg", "jpg":
		return "jpeg"
	default:
		return "png"
	}
}

func resolveVideoFormat(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mp4":
		return "mp4"
	case "webm":
		return "webm"
	default:
		return "mkv"
	}
}

func resolveAudioSource(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case AudioSystem:
		return AudioSystem
	case AudioMic, "microphone":
		return AudioMic
	default:
		return AudioNone
	}
}

func resolveFrameRate(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 || n > maxFrameRate {
		return DefaultFrameRate
	}
	return n
}

// ResolveKeymap normalizes a keymap name; unknown names fall back to the
// standard map. Exported because the tray menu switches keymaps at runtime.
func ResolveKeymap(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "alternate", "alt", "alternative":
		return KeymapAlternate
	default:
		return KeymapStandard
	}
}
