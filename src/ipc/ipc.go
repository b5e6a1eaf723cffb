// Package ipc carries the loopback TCP channels between processes: the
// resident UI's control endpoint (single-instance detection, second-launch
// focus handoff, CLI capture delegation) and the recording process's
// session endpoint (start/stop and finished-buffer handoff).
//
// The wire format is line-oriented and ordered, one request per
// connection direction:
//
//	PING                        -> PONG
//	FOCUS                       -> ACK
//	CAPTURE <mode>              -> ACK | ERROR <msg>
//	START <json request>        -> ACK | ERROR <msg>
//	STOP                        -> FINISHED <n>\n<n raw bytes> | ERROR <msg>
package ipc

import (
	"snapcap/src/capture"
	"snapcap/src/settings"
)

// StartRequest crosses from the UI process to the recording process. The
// region is in logical pixels with the device scale factor attached so
// the recorder can address the DPI-scaled capture buffer.
type StartRequest struct {
	Region   capture.Region    `json:"region"`
	Settings settings.Settings `json:"settings"`
}

// Handler receives parsed requests from a Server. A nil field means the
// endpoint does not support that request and the peer gets an error line.
type Handler struct {
	OnFocus   func()
	OnCapture func(mode string) error
	OnStart   func(req StartRequest) error
	OnStop    func() ([]byte, error)
}
