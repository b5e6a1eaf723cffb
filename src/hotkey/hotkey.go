// Package hotkey registers the three global shortcuts (copy region, save
// region, toggle recording) via a low-level keyboard hook and tracks key
// state by rawcode. Two keymaps exist so the defaults can dodge host-OS
// shortcut conflicts; the active one can be swapped at runtime.
package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Action is one of the logical shortcut actions.
type Action int

const (
	ActionCopy Action = iota
	ActionSave
	ActionToggleRecord
)

func (a Action) String() string {
	switch a {
	case ActionCopy:
		return "copy-region"
	case ActionSave:
		return "save-region"
	case ActionToggleRecord:
		return "toggle-record"
	default:
		return "unknown"
	}
}

// Keymap binds each action to a chord string like "Ctrl+Alt+C".
type Keymap map[Action]string

// StandardKeymap is the default binding set.
func StandardKeymap() Keymap {
	return Keymap{
		ActionCopy:         "Ctrl+Alt+C",
		ActionSave:         "Ctrl+Alt+S",
		ActionToggleRecord: "Ctrl+Alt+R",
	}
}

// AlternateKeymap adds Shift to every chord for hosts where the standard
// chords collide with OS or application shortcuts.
func AlternateKeymap() Keymap {
	return Keymap{
		ActionCopy:         "Ctrl+Shift+Alt+C",
		ActionSave:         "Ctrl+Shift+Alt+S",
		ActionToggleRecord: "Ctrl+Shift+Alt+R",
	}
}

// KeymapFor resolves a keymap name from settings; anything that is not
// "alternate" means standard.
func KeymapFor(name string) Keymap {
	if strings.EqualFold(strings.TrimSpace(name), "alternate") {
		return AlternateKeymap()
	}
	return StandardKeymap()
}

// chord is one action's key requirement: every entry is a key, satisfied
// by any of its rawcode variants (left/right modifiers).
type chord [][]uint16

// Listener owns the keyboard hook and dispatches actions.
type Listener struct {
	mu      sync.Mutex
	chords  map[Action]chord
	pressed map[uint16]bool

	onAction func(Action)

	escapeOn bool
	onEscape func()
}

// SetEscapeHandler arms a bare-Escape callback, used to stop an active
// recording without a chord. Disabled again by passing nil.
func (l *Listener) SetEscapeHandler(fn func()) {
	l.mu.Lock()
	l.onEscape = fn
	l.escapeOn = fn != nil
	l.mu.Unlock()
}

// Listen builds a listener for the named keymap and starts the hook in a
// background goroutine. A hook that fails to start is logged, not fatal:
// the tray menu still drives every action.
func Listen(keymapName string, onAction func(Action)) (*Listener, error) {
	l := &Listener{
		pressed:  make(map[uint16]bool),
		onAction: onAction,
	}
	if err := l.SetKeymap(keymapName); err != nil {
		return nil, err
	}
	go l.run()
	return l, nil
}

// SetKeymap swaps the active binding set at runtime.
func (l *Listener) SetKeymap(name string) error {
	chords := make(map[Action]chord)
	for action, spec := range KeymapFor(name) {
		c, err := parseChord(spec)
		if err != nil {
			return fmt.Errorf("hotkey: %s: %w", action, err)
		}
		chords[action] = c
	}
	l.mu.Lock()
	l.chords = chords
	l.pressed = make(map[uint16]bool)
	l.mu.Unlock()
	log.Printf("hotkey: keymap %q active", name)
	return nil
}

func (l *Listener) run() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hotkey: PANIC in hook goroutine: %v", r)
		}
	}()
	evChan := gohook.Start()
	if evChan == nil {
		log.Printf("hotkey: keyboard hook failed to start, shortcuts disabled")
		return
	}
	for ev := range evChan {
		switch ev.Kind {
		case gohook.KeyDown:
			if ev.Rawcode == 27 {
				l.mu.Lock()
				fn := l.onEscape
				armed := l.escapeOn
				l.mu.Unlock()
				if armed && fn != nil {
					fn()
					continue
				}
			}
			if action, ok := l.keyEvent(ev.Rawcode, true); ok {
				log.Printf("hotkey: %s triggered", action)
				if l.onAction != nil {
					l.onAction(action)
				}
			}
		case gohook.KeyUp:
			l.keyEvent(ev.Rawcode, false)
		}
	}
	log.Printf("hotkey: event channel closed")
}

// keyEvent updates the pressed set and reports a completed chord. The
// chord's keys are cleared on a match so holding the combination does not
// retrigger on key repeat.
func (l *Listener) keyEvent(rawcode uint16, down bool) (Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !down {
		delete(l.pressed, rawcode)
		return 0, false
	}
	l.pressed[rawcode] = true
	for action, c := range l.chords {
		if !chordSatisfied(c, l.pressed) {
			continue
		}
		for _, variants := range c {
			for _, rc := range variants {
				delete(l.pressed, rc)
			}
		}
		return action, true
	}
	return 0, false
}

func chordSatisfied(c chord, pressed map[uint16]bool) bool {
	for _, variants := range c {
		hit := false
		for _, rc := range variants {
			if pressed[rc] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// parseChord converts "Ctrl+Shift+Alt+C" into rawcode requirements.
func parseChord(spec string) (chord, error) {
	var c chord
	for _, part := range strings.Split(spec, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		variants, ok := rawcodesFor(name)
		if !ok {
			return nil, fmt.Errorf("unknown key %q in %q", part, spec)
		}
		c = append(c, variants)
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("empty chord %q", spec)
	}
	return c, nil
}

// rawcodesFor maps a key name to its Windows virtual-key rawcodes;
// modifiers carry both left and right variants.
func rawcodesFor(name string) ([]uint16, bool) {
	switch name {
	case "ctrl":
		return []uint16{162, 163}, true
	case "alt":
		return []uint16{164, 165}, true
	case "shift":
		return []uint16{160, 161}, true
	case "win", "cmd", "super":
		return []uint16{91, 92}, true
	case "space":
		return []uint16{32}, true
	case "enter", "return":
		return []uint16{13}, true
	case "esc", "escape":
		return []uint16{27}, true
	case "tab":
		return []uint16{9}, true
	}
	if len(name) == 1 {
		ch := name[0]
		if ch >= 'a' && ch <= 'z' {
			return []uint16{uint16(ch - 'a' + 'A')}, true
		}
		if ch >= '0' && ch <= '9' {
			return []uint16{uint16(ch)}, true
		}
	}
	if strings.HasPrefix(name, "f") && len(name) <= 3 {
		var n int
		if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 {
			return []uint16{uint16(111 + n)}, true
		}
	}
	return nil, false
}
