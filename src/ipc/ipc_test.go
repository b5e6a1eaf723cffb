package ipc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"snapcap/src/capture"
	"snapcap/src/settings"
)

// testRange keeps the tests off the production ranges so a locally
// running instance cannot interfere.
func testRange(t *testing.T) PortRange {
	t.Helper()
	return PortRange{Start: 50200, End: 50240}
}

func startServer(t *testing.T, h Handler) (*Server, context.CancelFunc) {
	t.Helper()
	srv, err := Listen(testRange(t), h)
	if err != nil {
		t.Skipf("loopback sockets unavailable: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	return srv, cancel
}

func TestPingPongDetection(t *testing.T) {
	srv, cancel := startServer(t, Handler{})
	defer cancel()
	defer srv.Close()

	client, err := Detect(testRange(t), time.Second)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if client.port != srv.Port() {
		t.Errorf("detected port %d, want %d", client.port, srv.Port())
	}
}

func TestDetectEmptyRange(t *testing.T) {
	if _, err := Detect(PortRange{Start: 50310, End: 50312}, 100*time.Millisecond); !errors.Is(err, ErrNoResident) {
		t.Errorf("Detect on empty range = %v, want ErrNoResident", err)
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	var started StartRequest
	payload := []byte("finished container bytes")
	srv, cancel := startServer(t, Handler{
		OnStart: func(req StartRequest) error { started = req; return nil },
		OnStop:  func() ([]byte, error) { return payload, nil },
	})
	defer cancel()
	defer srv.Close()

	client := NewClient(srv.Port())
	req := StartRequest{
		Region:   capture.Region{X: 4, Y: 8, Width: 640, Height: 480, ScaleFactor: 2},
		Settings: settings.Settings{FrameRate: 30, AudioSource: "mic", VideoFormat: "mp4"},
	}
	if err := client.StartRecording(req); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if started.Region != req.Region {
		t.Errorf("server saw region %+v, want %+v", started.Region, req.Region)
	}
	if started.Settings.AudioSource != "mic" || started.Settings.FrameRate != 30 {
		t.Errorf("server saw settings %+v", started.Settings)
	}

	buf, err := client.StopRecording(5 * time.Second)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Errorf("payload = %q, want %q", buf, payload)
	}
}

func TestStopWhileIdleReturnsEmpty(t *testing.T) {
	srv, cancel := startServer(t, Handler{
		OnStop: func() ([]byte, error) { return nil, nil },
	})
	defer cancel()
	defer srv.Close()

	buf, err := NewClient(srv.Port()).StopRecording(time.Second)
	if err != nil {
		t.Fatalf("duplicate stop must not error: %v", err)
	}
	if len(buf) != 0 {
		t.Errorf("idle stop returned %d bytes, want 0", len(buf))
	}
}

func TestErrorResponsesBecomeErrors(t *testing.T) {
	srv, cancel := startServer(t, Handler{
		OnStart: func(StartRequest) error { return errors.New("already recording") },
	})
	defer cancel()
	defer srv.Close()

	client := NewClient(srv.Port())
	err := client.StartRecording(StartRequest{Region: capture.Region{Width: 10, Height: 10}})
	if err == nil || err.Error() != "already recording" {
		t.Errorf("StartRecording error = %v, want message from server", err)
	}
	// Unsupported verb on this endpoint.
	if err := client.Focus(); err == nil {
		t.Error("Focus on a start-only endpoint must error")
	}
}

func TestFocusAndCaptureDelegation(t *testing.T) {
	focused := make(chan struct{}, 1)
	var capturedMode string
	srv, cancel := startServer(t, Handler{
		OnFocus:   func() { focused <- struct{}{} },
		OnCapture: func(mode string) error { capturedMode = mode; return nil },
	})
	defer cancel()
	defer srv.Close()

	client := NewClient(srv.Port())
	if err := client.Focus(); err != nil {
		t.Fatalf("Focus: %v", err)
	}
	select {
	case <-focused:
	case <-time.After(time.Second):
		t.Fatal("focus request never reached the handler")
	}
	if err := client.Capture("save"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if capturedMode != "save" {
		t.Errorf("capture mode = %q, want save", capturedMode)
	}
}

func TestStopUnexpectedStatusIsError(t *testing.T) {
	// A peer that answers STOP with a bare ACK instead of FINISHED must
	// produce an error, never a crash.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback sockets unavailable: %v", err)
	}
	defer lis.Close()
	go func() {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = bufio.NewReader(c).ReadString('\n')
		_, _ = c.Write([]byte("ACK\n"))
	}()

	port := lis.Addr().(*net.TCPAddr).Port
	buf, err := NewClient(port).StopRecording(time.Second)
	if err == nil {
		t.Fatalf("StopRecording accepted ACK, returned %d bytes", len(buf))
	}
	if !strings.Contains(err.Error(), "ACK") {
		t.Errorf("error %v does not name the unexpected status", err)
	}
}

func TestPortRangeOverrides(t *testing.T) {
	os.Setenv("SNAPCAP_PORT_START", "50400")
	os.Setenv("SNAPCAP_PORT_END", "50410")
	defer os.Unsetenv("SNAPCAP_PORT_START")
	defer os.Unsetenv("SNAPCAP_PORT_END")

	r := ControlPorts()
	if r.Start != 50400 || r.End != 50410 {
		t.Errorf("ControlPorts = %+v, want 50400-50410", r)
	}

	os.Setenv("SNAPCAP_PORT_START", "80")
	if r := ControlPorts(); r.Start != 1024 {
		t.Errorf("low port not clamped: %+v", r)
	}
	os.Setenv("SNAPCAP_PORT_START", "garbage")
	if r := ControlPorts(); r.Start != defaultControlStart {
		t.Errorf("invalid override not defaulted: %+v", r)
	}
}
