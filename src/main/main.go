package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"snapcap/src/capture"
	"snapcap/src/clipboard"
	"snapcap/src/hotkey"
	"snapcap/src/ipc"
	"snapcap/src/logutil"
	"snapcap/src/notification"
	"snapcap/src/orchestrator"
	"snapcap/src/platform"
	"snapcap/src/recorder"
	"snapcap/src/selector"
	"snapcap/src/settings"
	"snapcap/src/tray"
)

func main() {
	// DPI awareness must be set before any window or metrics call.
	enableDPIAwareness()
	runtime.LockOSThread()

	recordServer := flag.Bool("record-server", false, "Run as the resident recording process")
	flag.Parse()

	defer func() {
		if r := recover(); r != nil {
			handleCrash(r)
			os.Exit(1)
		}
	}()

	if *recordServer {
		runRecordServer()
		return
	}
	runResident()
}

// handleCrash records an unrecoverable fault and tells the user before
// the process dies; without the popup the app would just vanish.
func handleCrash(v any) {
	logutil.Crash(v)
	notification.ShowBlockingError("Snapcap crashed", fmt.Sprintf("%v\n\nDetails were written to the crash log.", v))
}

// nextKeymap returns the keymap one switch away from cur.
func nextKeymap(cur string) string {
	if cur == settings.KeymapAlternate {
		return settings.KeymapStandard
	}
	return settings.KeymapAlternate
}

// runResident is the UI process: tray, hotkeys, overlay, still output,
// and the parent of the recording process.
func runResident() {
	set, err := settings.Load()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	logutil.Setup(set.EnableFileLogging)

	// Single instance: binding the control port IS the lock. Two
	// simultaneous launches cannot both hold a port, where a
	// detect-then-bind order would let both pass the scan.
	// The handlers close over loop, which is assigned before Serve runs.
	var loop *orchestrator.Loop
	srv, err := ipc.Listen(ipc.ControlPorts(), ipc.Handler{
		OnFocus: func() {
			notification.Show("Snapcap is already running")
		},
		OnCapture: func(mode string) error {
			switch mode {
			case "copy":
				loop.PostAction(hotkey.ActionCopy)
			case "save":
				loop.PostAction(hotkey.ActionSave)
			case "record":
				loop.PostAction(hotkey.ActionToggleRecord)
			default:
				return fmt.Errorf("unknown capture mode %q", mode)
			}
			return nil
		},
	})
	if err != nil {
		// Range exhausted: a resident already holds a port. Hand it
		// focus and bow out.
		existing, derr := ipc.Detect(ipc.ControlPorts(), 300*time.Millisecond)
		if derr != nil {
			log.Fatalf("control endpoint: %v (and no resident answered: %v)", err, derr)
		}
		log.Printf("resident already running, notifying and exiting")
		_ = existing.Focus()
		fmt.Println("snapcap is already running")
		os.Exit(0)
	}
	defer srv.Close()

	if err := clipboard.Init(); err != nil {
		// Stills can still be saved to files; only copy is degraded.
		log.Printf("clipboard unavailable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recClient, stopChild := spawnRecordServer()
	defer stopChild()

	loop = orchestrator.New(selector.NewSelector(), recClient)

	go srv.Serve(ctx)
	tray.SetAboutExtra(fmt.Sprintf("control port %d", srv.Port()))
	log.Printf("resident listening on 127.0.0.1:%d", srv.Port())

	currentKeymap := set.Keymap
	tray.SetKeymapLabel(nextKeymap(currentKeymap))
	listener, err := hotkey.Listen(set.Keymap, loop.PostAction)
	if err != nil {
		notification.Show("Hotkey registration failed: " + err.Error())
		log.Printf("hotkey registration failed: %v", err)
	} else {
		// Escape stops an active recording without needing the chord.
		listener.SetEscapeHandler(func() {
			if loop.Registry().Recording() {
				loop.PostAction(hotkey.ActionToggleRecord)
			}
		})
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
		tray.Quit()
	}()

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("event loop stopped: %v", err)
		}
	}()

	tray.Run(func(a tray.MenuAction) {
		switch a {
		case tray.MenuCopyRegion:
			loop.PostAction(hotkey.ActionCopy)
		case tray.MenuSaveRegion:
			loop.PostAction(hotkey.ActionSave)
		case tray.MenuToggleRecord:
			loop.PostAction(hotkey.ActionToggleRecord)
		case tray.MenuSwitchKeymap:
			next := nextKeymap(currentKeymap)
			if listener != nil {
				if err := listener.SetKeymap(next); err != nil {
					notification.Show("Keymap switch failed: " + err.Error())
					return
				}
			}
			currentKeymap = next
			tray.SetKeymapLabel(nextKeymap(currentKeymap))
			notification.Show("Hotkeys switched to the " + currentKeymap + " set")
		case tray.MenuQuit:
			cancel()
		}
	}, func() {
		cancel()
	})
}

// spawnRecordServer starts the recording process and locates its port.
// A recorder that fails to come up degrades to stills-only: the client
// returned then errors on StartRecording, never on copy or save.
func spawnRecordServer() (*ipc.Client, func()) {
	exe, err := os.Executable()
	if err != nil {
		log.Printf("record server: cannot resolve executable: %v", err)
		return ipc.NewClient(0), func() {}
	}
	cmd := exec.Command(exe, "-record-server")
	// The child watches this pipe and exits on EOF, so an abrupt parent
	// death never leaves an orphaned recorder.
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("record server: stdin pipe: %v", err)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		log.Printf("record server failed to start: %v", err)
		return ipc.NewClient(0), func() {}
	}
	log.Printf("record server spawned, pid %d", cmd.Process.Pid)

	client, err := ipc.DetectResident(ipc.RecordPorts(), 5*time.Second)
	if err != nil {
		log.Printf("record server never came up: %v", err)
		client = ipc.NewClient(0)
	}
	stop := func() {
		if stdin != nil {
			_ = stdin.Close()
		}
		done := make(chan struct{})
		go func() { _, _ = cmd.Process.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	return client, stop
}

// recordManager is the part of recorder.Manager the record endpoint
// drives.
type recordManager interface {
	Start(region capture.Region, set settings.Settings) error
	Stop() ([]byte, error)
}

// recordHandler answers START/STOP by delegating straight to the
// manager. START during an unfinished session is not refused here: the
// manager tears the old session down and starts fresh, so an orphaned
// recording can never wedge the toggle.
func recordHandler(mgr recordManager) ipc.Handler {
	return ipc.Handler{
		OnStart: func(req ipc.StartRequest) error {
			return mgr.Start(req.Region, req.Settings)
		},
		OnStop: func() ([]byte, error) {
			return mgr.Stop()
		},
	}
}

// runRecordServer is the recording process: it owns the session manager
// and answers START/STOP on its own port range.
func runRecordServer() {
	set, err := settings.Load()
	if err == nil {
		logutil.Setup(set.EnableFileLogging)
	}
	caps := platform.Detect()
	mgr := recorder.New(caps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := ipc.Listen(ipc.RecordPorts(), recordHandler(mgr))
	if err != nil {
		log.Fatalf("record endpoint: %v", err)
	}
	log.Printf("record server listening on 127.0.0.1:%d", srv.Port())

	// Exit when the parent closes our stdin.
	go func() {
		_, _ = io.Copy(io.Discard, os.Stdin)
		log.Printf("record server: parent gone, shutting down")
		if _, err := mgr.Stop(); err != nil {
			log.Printf("record server: final stop: %v", err)
		}
		cancel()
	}()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	srv.Serve(ctx)
}
