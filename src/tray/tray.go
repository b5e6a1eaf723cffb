// Package tray owns the system tray icon and menu. Menu clicks are
// forwarded to a handler so the event loop stays the single owner of
// capture state.
package tray

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/getlantern/systray"
)

// MenuAction identifies a tray menu selection.
type MenuAction int

const (
	MenuCopyRegion MenuAction = iota
	MenuSaveRegion
	MenuToggleRecord
	MenuSwitchKeymap
	MenuQuit
)

const defaultTooltip = "Snapcap"

var (
	mu         sync.Mutex
	aboutExtra string
	recordItem *systray.MenuItem
	keymapItem *systray.MenuItem
)

// Run starts the tray and blocks until Quit. Menu clicks invoke handler
// from a tray goroutine; handlers should post into the event loop.
func Run(handler func(MenuAction), onExit func()) {
	systray.Run(func() { onReady(handler) }, onExit)
}

func onReady(handler func(MenuAction)) {
	systray.SetTitle("Snapcap")
	systray.SetTooltip(defaultTooltip)

	mCopy := systray.AddMenuItem("Copy Region", "Copy a screen region to the clipboard")
	mSave := systray.AddMenuItem("Save Region", "Save a screen region to a file")
	mRecord := systray.AddMenuItem("Start Recording", "Record a screen region")
	systray.AddSeparator()
	mKeymap := systray.AddMenuItem("Use Alternate Hotkeys", "Switch between the standard and alternate shortcut set")
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	mu.Lock()
	recordItem = mRecord
	keymapItem = mKeymap
	mu.Unlock()

	go func() {
		for {
			select {
			case <-mCopy.ClickedCh:
				handler(MenuCopyRegion)
			case <-mSave.ClickedCh:
				handler(MenuSaveRegion)
			case <-mRecord.ClickedCh:
				handler(MenuToggleRecord)
			case <-mKeymap.ClickedCh:
				handler(MenuSwitchKeymap)
			case <-mQuit.ClickedCh:
				handler(MenuQuit)
				systray.Quit()
				return
			}
		}
	}()
	log.Printf("tray: ready")
}

// UpdateTooltip sets the tray tooltip, used to reflect busy state.
func UpdateTooltip(text string) {
	if text == "" {
		text = defaultTooltip
	}
	mu.Lock()
	extra := aboutExtra
	mu.Unlock()
	if extra != "" {
		text = fmt.Sprintf("%s (%s)", text, extra)
	}
	systray.SetTooltip(text)
}

// SetAboutExtra appends diagnostic info (like the control port) to the
// tooltip.
func SetAboutExtra(extra string) {
	mu.Lock()
	aboutExtra = extra
	mu.Unlock()
	UpdateTooltip("")
}

// SetRecording flips the record menu label to match the session state.
func SetRecording(active bool) {
	mu.Lock()
	item := recordItem
	mu.Unlock()
	if item == nil {
		return
	}
	if active {
		item.SetTitle("Stop Recording")
	} else {
		item.SetTitle("Start Recording")
	}
}

// SetKeymapLabel points the switch item at the keymap a click would
// activate next.
func SetKeymapLabel(next string) {
	mu.Lock()
	item := keymapItem
	mu.Unlock()
	if item == nil {
		return
	}
	item.SetTitle(fmt.Sprintf("Use %s Hotkeys", titleCase(next)))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Quit tears down the tray loop.
func Quit() {
	systray.Quit()
}
