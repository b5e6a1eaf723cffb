package ipc

import (
	"os"
	"strconv"
)

// PortRange is an inclusive loopback TCP port range one endpoint scans
// or binds within.
type PortRange struct {
	Start int
	End   int
}

const (
	defaultControlStart = 49500
	defaultControlEnd   = 49550
	defaultRecordStart  = 49560
	defaultRecordEnd    = 49610
)

// ControlPorts returns the range the resident UI binds its control
// endpoint in. Overridable via SNAPCAP_PORT_START / SNAPCAP_PORT_END.
func ControlPorts() PortRange {
	return envRange("SNAPCAP_PORT_START", "SNAPCAP_PORT_END", defaultControlStart, defaultControlEnd)
}

// RecordPorts returns the range the recording process binds in.
// Overridable via SNAPCAP_RECORD_PORT_START / SNAPCAP_RECORD_PORT_END.
func RecordPorts() PortRange {
	return envRange("SNAPCAP_RECORD_PORT_START", "SNAPCAP_RECORD_PORT_END", defaultRecordStart, defaultRecordEnd)
}

// envRange reads the override variables, falls back to defaults when
// unset or invalid, and clamps to [1024, 65535].
func envRange(startVar, endVar string, defStart, defEnd int) PortRange {
	start, end := defStart, defEnd
	if v := os.Getenv(startVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if v := os.Getenv(endVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			end = n
		}
	}
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return PortRange{Start: start, End: end}
}
