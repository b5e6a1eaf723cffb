// Package platform carries the runtime capability record injected at
// startup. Code elsewhere branches on this record instead of sprinkling
// runtime.GOOS checks through the pipeline.
package platform

import "runtime"

// Capabilities describes what the host can do for capture and audio.
type Capabilities struct {
	OS              string
	DPIAware        bool
	SystemAudioArgs []string
	MicSupported    bool
}

// Detect builds the capability record for the current host.
func Detect() Capabilities {
	caps := Capabilities{
		OS:           runtime.GOOS,
		MicSupported: true,
	}
	switch runtime.GOOS {
	case "linux":
		// PulseAudio monitor of the default sink.
		caps.SystemAudioArgs = []string{"-f", "pulse", "-i", "default.monitor"}
	case "windows":
		caps.DPIAware = true
		caps.SystemAudioArgs = []string{"-f", "dshow", "-i", "audio=Stereo Mix"}
	case "darwin":
		// System audio needs a loopback device the user installs; no
		// default exists, so leave it empty and let acquisition degrade.
		caps.SystemAudioArgs = nil
	}
	return caps
}

// SystemAudioSupported reports whether a system-audio loopback source is
// known for this host.
func (c Capabilities) SystemAudioSupported() bool {
	return len(c.SystemAudioArgs) > 0
}
