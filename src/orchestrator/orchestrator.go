// Package orchestrator runs the single-goroutine coordinator for all
// capture flows: hotkey and tray actions, region selection, still-image
// output, and start/stop of the resident recording process. All mutable
// state lives on the loop goroutine; workers post results back through a
// channel.
package orchestrator

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"snapcap/src/capture"
	"snapcap/src/clipboard"
	"snapcap/src/hotkey"
	"snapcap/src/ipc"
	"snapcap/src/notification"
	"snapcap/src/selector"
	"snapcap/src/settings"
	"snapcap/src/tray"
	"snapcap/src/worker"
)

// settleDelay gives the window manager time to finish hiding the overlay
// before the output still is fetched, so the overlay's own chrome never
// shows up in the capture.
const settleDelay = 150 * time.Millisecond

// stopTimeout bounds the wait for the recording process to finalize.
const stopTimeout = 30 * time.Second

// recorderClient is the slice of ipc.Client the loop drives.
type recorderClient interface {
	StartRecording(ipc.StartRequest) error
	StopRecording(timeout time.Duration) ([]byte, error)
}

type outcome struct {
	message string
	err     error
	// stillDone marks the end of a still-capture operation so the
	// registry can return to idle.
	stillDone bool
}

// Loop is the event-loop coordinator.
type Loop struct {
	sel      selector.Selector
	pool     *worker.Pool
	registry *Registry
	recorder recorderClient

	actions chan hotkey.Action
	results chan outcome

	// Settings of the in-flight recording, captured at start so a .env
	// edit mid-recording cannot change where the file lands.
	recordingSet settings.Settings

	// Seams for tests; production wiring is in New.
	loadSettings func() (settings.Settings, error)
	takeStill    func(sourceID int) (*image.RGBA, error)
	bounds       func(sourceID int) (image.Rectangle, error)
	scaleFor     func(sourceID int) float64
	clipImage    func(img image.Image) error
	clipText     func(text string) error
	writeImage   func(img image.Image, format, dir string) (string, error)
	writeVideo   func(buf []byte, format, dir string) (string, error)
	notify       func(text string)
	setRecording func(active bool)
	tooltip      func(text string)
	sleep        func(d time.Duration)
}

// New builds a production loop talking to the given recording process.
func New(sel selector.Selector, recorder recorderClient) *Loop {
	return &Loop{
		sel:          sel,
		pool:         worker.New(0),
		registry:     NewRegistry(),
		recorder:     recorder,
		actions:      make(chan hotkey.Action, 4),
		results:      make(chan outcome, 4),
		loadSettings: settings.Load,
		takeStill:    capture.StillFrame,
		bounds:       capture.DisplayBounds,
		scaleFor:     capture.DisplayScaleFactor,
		clipImage:    clipboard.WriteImage,
		clipText:     clipboard.WriteText,
		writeImage:   writeStill,
		writeVideo:   writeVideo,
		notify:       notification.Show,
		setRecording: tray.SetRecording,
		tooltip:      tray.UpdateTooltip,
		sleep:        time.Sleep,
	}
}

// Registry exposes the session registry, mainly for the IPC handler.
func (l *Loop) Registry() *Registry { return l.registry }

// PostAction queues an action from a hotkey, tray, or IPC goroutine.
// Queue overflow drops the action: a stuck loop must not buffer an
// unbounded burst of hotkey presses to replay later.
func (l *Loop) PostAction(a hotkey.Action) {
	select {
	case l.actions <- a:
	default:
		log.Printf("orchestrator: action queue full, dropping %s", a)
	}
}

// Run processes actions until ctx is cancelled. An active recording is
// stopped on the way out so the recorder never outlives its parent's
// intent.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()
	for {
		select {
		case <-ctx.Done():
			if l.registry.Recording() {
				l.stopRecording()
			}
			return ctx.Err()
		case a := <-l.actions:
			l.handleAction(ctx, a)
		case res := <-l.results:
			l.handleOutcome(res)
		}
	}
}

func (l *Loop) handleAction(ctx context.Context, a hotkey.Action) {
	switch a {
	case hotkey.ActionCopy:
		l.still(ctx, selector.ModeCopy)
	case hotkey.ActionSave:
		l.still(ctx, selector.ModeSave)
	case hotkey.ActionToggleRecord:
		if l.registry.Recording() {
			l.stopRecording()
		} else {
			l.startRecording(ctx)
		}
	}
}

func (l *Loop) handleOutcome(res outcome) {
	if res.stillDone {
		l.registry.Reset()
		l.tooltip("")
	}
	if res.err != nil {
		log.Printf("orchestrator: %v", res.err)
		l.notify(res.message + ": " + res.err.Error())
		return
	}
	if res.message != "" {
		l.notify(res.message)
	}
}

// still runs one copy-or-save flow: claim the registry, let the user
// select, then crop and deliver on a worker.
func (l *Loop) still(ctx context.Context, mode selector.Mode) {
	if err := l.registry.BeginSelecting(); err != nil {
		l.notify("Busy, please retry")
		return
	}
	set, err := l.loadSettings()
	if err != nil {
		l.registry.Reset()
		l.notify("Settings error: " + err.Error())
		return
	}

	region, cancelled, err := l.sel.Select(ctx, selector.Request{Mode: mode, FrozenBackdrop: true})
	if err != nil {
		l.registry.Reset()
		l.notify("Selection failed: " + err.Error())
		return
	}
	if cancelled {
		l.registry.Reset()
		return
	}
	if err := l.registry.BeginCapturing(); err != nil {
		l.registry.Reset()
		return
	}
	l.tooltip("Snapcap: capturing...")

	submitted := l.pool.Submit(ctx, func(ctx context.Context) {
		l.results <- l.deliverStill(mode, region, set)
	})
	if !submitted {
		l.registry.Reset()
		l.tooltip("")
		l.notify("Busy, please retry")
	}
}

// deliverStill runs on a worker goroutine. The overlay is already gone;
// wait out the close animation, fetch a fresh still, crop in physical
// pixels and deliver.
func (l *Loop) deliverStill(mode selector.Mode, region capture.Region, set settings.Settings) outcome {
	l.sleep(settleDelay)
	still, err := l.takeStill(0)
	if err != nil {
		return outcome{stillDone: true, message: "Capture failed", err: err}
	}
	logical, err := l.bounds(0)
	if err != nil {
		return outcome{stillDone: true, message: "Capture failed", err: err}
	}
	img, err := capture.CropStill(still, region, logical)
	if err != nil {
		return outcome{stillDone: true, message: "Capture failed", err: err}
	}
	if mode == selector.ModeCopy {
		if err := l.clipImage(img); err != nil {
			return outcome{stillDone: true, message: "Clipboard error", err: err}
		}
		return outcome{stillDone: true, message: "Copied to clipboard"}
	}
	path, err := l.writeImage(img, set.ImageFormat, set.SavePath)
	if err != nil {
		return outcome{stillDone: true, message: "Save failed", err: err}
	}
	l.copyPath(path)
	return outcome{stillDone: true, message: "Saved " + path}
}

// copyPath puts the saved file's path on the clipboard so it can be
// pasted straight into a chat or file dialog. Failure only logs, the
// file itself is already safe.
func (l *Loop) copyPath(path string) {
	if err := l.clipText(path); err != nil {
		log.Printf("orchestrator: could not copy path to clipboard: %v", err)
	}
}

// startRecording selects a region and hands it to the recording process
// with the device scale factor attached.
func (l *Loop) startRecording(ctx context.Context) {
	if err := l.registry.BeginSelecting(); err != nil {
		l.notify("Busy, please retry")
		return
	}
	set, err := l.loadSettings()
	if err != nil {
		l.registry.Reset()
		l.notify("Settings error: " + err.Error())
		return
	}

	region, cancelled, err := l.sel.Select(ctx, selector.Request{Mode: selector.ModeRecord})
	if err != nil {
		l.registry.Reset()
		l.notify("Selection failed: " + err.Error())
		return
	}
	if cancelled {
		l.registry.Reset()
		return
	}
	if region.ScaleFactor == 0 {
		region.ScaleFactor = l.scaleFor(0)
	}

	if err := l.recorder.StartRecording(ipc.StartRequest{Region: region, Settings: set}); err != nil {
		l.registry.Reset()
		l.notify("Recording failed to start: " + err.Error())
		return
	}
	if err := l.registry.BeginRecording(); err != nil {
		// Should be impossible from selecting; stop what we started.
		_, _ = l.recorder.StopRecording(stopTimeout)
		l.registry.Reset()
		return
	}
	l.recordingSet = set
	l.setRecording(true)
	l.tooltip("Snapcap: recording...")
	l.notify("Recording started")
}

// stopRecording requests the finished buffer and writes it on a worker.
func (l *Loop) stopRecording() {
	set := l.recordingSet
	l.setRecording(false)
	buf, err := l.recorder.StopRecording(stopTimeout)
	l.registry.Reset()
	l.tooltip("")
	if err != nil {
		l.notify("Recording failed: " + err.Error())
		return
	}
	if len(buf) == 0 {
		l.notify("Recording produced no data")
		return
	}
	submitted := l.pool.Submit(context.Background(), func(context.Context) {
		path, err := l.writeVideo(buf, set.VideoFormat, set.SavePath)
		switch {
		case err != nil && path != "":
			// Transcode failed but the native container survived.
			l.results <- outcome{message: fmt.Sprintf("Conversion failed, kept %s", path)}
		case err != nil:
			l.results <- outcome{message: "Recording save failed", err: err}
		default:
			l.copyPath(path)
			l.results <- outcome{message: "Recorded " + path}
		}
	})
	if !submitted {
		// The single-slot queue is busy with a still; write inline
		// rather than lose the recording.
		path, err := l.writeVideo(buf, set.VideoFormat, set.SavePath)
		if err != nil && path == "" {
			l.notify("Recording save failed: " + err.Error())
			return
		}
		l.copyPath(path)
		l.notify("Recorded " + path)
	}
}
