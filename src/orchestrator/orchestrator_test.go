package orchestrator

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"snapcap/src/capture"
	"snapcap/src/hotkey"
	"snapcap/src/ipc"
	"snapcap/src/selector"
	"snapcap/src/settings"
	"snapcap/src/worker"
)

type fakeSelector struct {
	mu        sync.Mutex
	region    capture.Region
	cancelled bool
	err       error
	requests  []selector.Request
}

func (f *fakeSelector) Select(ctx context.Context, req selector.Request) (capture.Region, bool, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.region, f.cancelled, f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []ipc.StartRequest
	startErr error
	stopBuf  []byte
	stopErr  error
	stops    int
}

func (f *fakeRecorder) StartRecording(req ipc.StartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, req)
	return nil
}

func (f *fakeRecorder) StopRecording(time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopBuf, f.stopErr
}

type harness struct {
	loop      *Loop
	sel       *fakeSelector
	rec       *fakeRecorder
	notices   chan string
	saved     chan string
	clipped   chan image.Image
	clipTexts chan string
	videos    chan []byte
	videoErr  error
	cancel    context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sel:     &fakeSelector{region: capture.Region{X: 10, Y: 20, Width: 300, Height: 200, ScaleFactor: 1}},
		rec:     &fakeRecorder{stopBuf: []byte("container")},
		notices:   make(chan string, 16),
		saved:     make(chan string, 4),
		clipped:   make(chan image.Image, 4),
		clipTexts: make(chan string, 4),
		videos:    make(chan []byte, 4),
	}
	l := &Loop{
		sel:      h.sel,
		pool:     worker.New(1),
		registry: NewRegistry(),
		recorder: h.rec,
		actions:  make(chan hotkey.Action, 4),
		results:  make(chan outcome, 4),
		loadSettings: func() (settings.Settings, error) {
			return settings.Settings{SavePath: t.TempDir(), ImageFormat: "png", VideoFormat: "mkv", FrameRate: 30}, nil
		},
		takeStill: func(int) (*image.RGBA, error) {
			return image.NewRGBA(image.Rect(0, 0, 800, 600)), nil
		},
		bounds:   func(int) (image.Rectangle, error) { return image.Rect(0, 0, 800, 600), nil },
		scaleFor: func(int) float64 { return 2.0 },
		clipImage: func(img image.Image) error {
			h.clipped <- img
			return nil
		},
		clipText: func(text string) error {
			h.clipTexts <- text
			return nil
		},
		writeImage: func(img image.Image, format, dir string) (string, error) {
			path := dir + "/capture-test." + format
			h.saved <- path
			return path, nil
		},
		writeVideo: func(buf []byte, format, dir string) (string, error) {
			h.videos <- buf
			if h.videoErr != nil {
				return "", h.videoErr
			}
			return dir + "/recording-test." + format, nil
		},
		notify:       func(text string) { h.notices <- text },
		setRecording: func(bool) {},
		tooltip:      func(string) {},
		sleep:        func(time.Duration) {},
	}
	h.loop = l
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go l.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func (h *harness) waitNotice(t *testing.T, substr string) string {
	t.Helper()
	for {
		select {
		case n := <-h.notices:
			if strings.Contains(n, substr) {
				return n
			}
			t.Logf("skipping notice %q", n)
		case <-time.After(3 * time.Second):
			t.Fatalf("no notice containing %q", substr)
		}
	}
}

func waitIdle(t *testing.T, r *Registry) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Phase() != PhaseIdle {
		if time.Now().After(deadline) {
			t.Fatalf("registry stuck in %s", r.Phase())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCopyFlowDeliversToClipboard(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionCopy)
	select {
	case img := <-h.clipped:
		b := img.Bounds()
		if b.Dx() != 300 || b.Dy() != 200 {
			t.Errorf("cropped image %dx%d, want 300x200", b.Dx(), b.Dy())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("nothing reached the clipboard")
	}
	h.waitNotice(t, "Copied")
	waitIdle(t, h.loop.registry)
}

func TestSaveFlowWritesFile(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionSave)
	select {
	case path := <-h.saved:
		if !strings.HasSuffix(path, ".png") {
			t.Errorf("saved path %q, want .png", path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("nothing was saved")
	}
	h.waitNotice(t, "Saved")
	waitIdle(t, h.loop.registry)
}

func TestSavedPathLandsOnClipboard(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionSave)
	var path string
	select {
	case path = <-h.saved:
	case <-time.After(3 * time.Second):
		t.Fatal("nothing was saved")
	}
	select {
	case text := <-h.clipTexts:
		if text != path {
			t.Errorf("clipboard text %q, want saved path %q", text, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("saved path never reached the clipboard")
	}
	waitIdle(t, h.loop.registry)
}

func TestRecordedPathLandsOnClipboard(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "Recording started")
	h.loop.PostAction(hotkey.ActionToggleRecord)
	select {
	case text := <-h.clipTexts:
		if !strings.HasSuffix(text, ".mkv") {
			t.Errorf("clipboard text %q, want recording path", text)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("recording path never reached the clipboard")
	}
}

func TestCancelledSelectionResetsToIdle(t *testing.T) {
	h := newHarness(t)
	h.sel.cancelled = true
	h.loop.PostAction(hotkey.ActionCopy)
	waitIdle(t, h.loop.registry)
	select {
	case img := <-h.clipped:
		t.Errorf("cancelled selection still delivered %v", img.Bounds())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSelectionErrorNotifiesAndResets(t *testing.T) {
	h := newHarness(t)
	h.sel.err = errors.New("overlay exploded")
	h.loop.PostAction(hotkey.ActionSave)
	h.waitNotice(t, "Selection failed")
	waitIdle(t, h.loop.registry)
}

func TestRecordToggleStartsAndStops(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "Recording started")
	if h.loop.registry.Phase() != PhaseRecording {
		t.Fatalf("phase = %s, want recording", h.loop.registry.Phase())
	}
	h.rec.mu.Lock()
	if len(h.rec.started) != 1 {
		t.Fatalf("recorder started %d times, want 1", len(h.rec.started))
	}
	req := h.rec.started[0]
	h.rec.mu.Unlock()
	if req.Region.ScaleFactor != 1 {
		t.Errorf("scale factor %v, want the selector's own 1", req.Region.ScaleFactor)
	}

	h.loop.PostAction(hotkey.ActionToggleRecord)
	select {
	case buf := <-h.videos:
		if string(buf) != "container" {
			t.Errorf("wrote %q, want the recorder's buffer", buf)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("finished buffer never written")
	}
	h.waitNotice(t, "Recorded")
	waitIdle(t, h.loop.registry)
}

func TestScaleFactorAttachedWhenSelectorOmitsIt(t *testing.T) {
	h := newHarness(t)
	h.sel.region.ScaleFactor = 0
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "Recording started")
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if got := h.rec.started[0].Region.ScaleFactor; got != 2.0 {
		t.Errorf("scale factor %v, want display's 2.0", got)
	}
}

func TestRecorderStartFailureResets(t *testing.T) {
	h := newHarness(t)
	h.rec.startErr = errors.New("record server down")
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "failed to start")
	waitIdle(t, h.loop.registry)
}

func TestEmptyRecordingBufferNotifies(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "Recording started")
	h.rec.mu.Lock()
	h.rec.stopBuf = nil
	h.rec.mu.Unlock()
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "no data")
	waitIdle(t, h.loop.registry)
	select {
	case buf := <-h.videos:
		t.Errorf("empty buffer was written: %q", buf)
	default:
	}
}

func TestBusyRefusesSecondOperation(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "Recording started")
	// A still while recording must be refused.
	h.loop.PostAction(hotkey.ActionCopy)
	h.waitNotice(t, "Busy")
	if h.loop.registry.Phase() != PhaseRecording {
		t.Errorf("phase = %s, recording must survive the refused copy", h.loop.registry.Phase())
	}
}

func TestRecordModeRequestedFromSelector(t *testing.T) {
	h := newHarness(t)
	h.loop.PostAction(hotkey.ActionToggleRecord)
	h.waitNotice(t, "Recording started")
	h.sel.mu.Lock()
	defer h.sel.mu.Unlock()
	if len(h.sel.requests) != 1 || h.sel.requests[0].Mode != selector.ModeRecord {
		t.Errorf("selector requests = %+v, want one record-mode request", h.sel.requests)
	}
	if h.sel.requests[0].FrozenBackdrop {
		t.Error("record mode must not freeze a backdrop")
	}
}
