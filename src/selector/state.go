package selector

import (
	"snapcap/src/capture"
)

// Mode selects what happens with the selected region.
type Mode int

const (
	ModeCopy Mode = iota
	ModeSave
	ModeRecord
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "copy"
	case ModeSave:
		return "save"
	case ModeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Passthrough is the OS-level input mode requested for the overlay window.
// Exactly one of the two values is in force at any time.
type Passthrough int

const (
	// PassthroughCapture makes the overlay receive all pointer input.
	PassthroughCapture Passthrough = iota
	// PassthroughForward makes the overlay transparent to pointer input,
	// forwarding events to the windows beneath it.
	PassthroughForward
)

func (p Passthrough) String() string {
	if p == PassthroughForward {
		return "forward"
	}
	return "capture"
}

// State is the selection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateSelected
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateSelected:
		return "selected"
	case StateConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// EventKind identifies a pointer/keyboard input to the state machine.
type EventKind int

const (
	EventButtonDown EventKind = iota
	EventMove
	EventButtonUp
	EventConfirm
	EventCancel
)

// Event is one discrete input. X,Y are overlay-local logical pixels.
type Event struct {
	Kind EventKind
	X    int
	Y    int
}

// Effect describes the side effects a transition requests from the
// surface. Transitions never touch the OS themselves; the surface applies
// Passthrough synchronously after every transition so the click-through
// assignment can never go stale.
type Effect struct {
	Passthrough Passthrough
	Emit        *capture.Region
	Cancelled   bool
	Repaint     bool
}

// Interaction is the overlay interaction state machine. It is pure: all
// OS work is expressed through the returned Effect.
type Interaction struct {
	Mode            Mode
	HasBackdrop     bool
	RecordingActive bool

	state              State
	startX, startY     int
	curX, curY         int
	selection          *capture.Region
	virtualX, virtualY int
}

// NewInteraction creates the machine in Idle. virtualX/Y is the virtual
// screen origin added to emitted regions.
func NewInteraction(mode Mode, hasBackdrop bool, virtualX, virtualY int) *Interaction {
	return &Interaction{
		Mode:        mode,
		HasBackdrop: hasBackdrop,
		virtualX:    virtualX,
		virtualY:    virtualY,
	}
}

// State returns the current lifecycle state.
func (it *Interaction) State() State { return it.state }

// Selection returns the current selection, nil when none.
func (it *Interaction) Selection() *capture.Region { return it.selection }

// DragRect returns the in-progress drag rectangle.
func (it *Interaction) DragRect() capture.Region {
	return normalizeDrag(it.startX, it.startY, it.curX, it.curY)
}

// PassthroughFor is the single click-through decision table. The overlay
// forwards input only while a recording is active, because that is the one
// window where the desktop must stay usable underneath the overlay chrome.
// In every other situation a selection can begin or continue (live
// crosshair) or a held backdrop owns the whole screen (frozen mode), so
// the overlay captures input.
func PassthroughFor(mode Mode, recordingActive, hasBackdrop bool) Passthrough {
	if mode == ModeRecord && recordingActive && !hasBackdrop {
		return PassthroughForward
	}
	return PassthroughCapture
}

func (it *Interaction) passthrough() Passthrough {
	return PassthroughFor(it.Mode, it.RecordingActive, it.HasBackdrop)
}

// SetRecordingActive flips the recording flag and returns the effect
// carrying the click-through mode the surface must apply now. The
// selection overlay itself is torn down before a recording starts, so
// the forward row of the policy only fires for a window that stays up
// during the recording, such as a border chrome or recording indicator;
// any such surface gets its click-through behavior from here instead of
// deciding on its own.
func (it *Interaction) SetRecordingActive(active bool) Effect {
	it.RecordingActive = active
	return Effect{Passthrough: it.passthrough(), Repaint: true}
}

// Transition feeds one event into the machine.
func (it *Interaction) Transition(ev Event) Effect {
	eff := Effect{Passthrough: it.passthrough()}

	switch ev.Kind {
	case EventCancel:
		it.reset()
		eff.Passthrough = it.passthrough()
		eff.Cancelled = true
		eff.Repaint = true
		return eff

	case EventButtonDown:
		if it.state == StateIdle || it.state == StateSelected {
			it.state = StateSelecting
			it.selection = nil
			it.startX, it.startY = ev.X, ev.Y
			it.curX, it.curY = ev.X, ev.Y
			eff.Repaint = true
		}
		return eff

	case EventMove:
		if it.state == StateSelecting {
			it.curX, it.curY = ev.X, ev.Y
			eff.Repaint = true
		}
		return eff

	case EventButtonUp:
		if it.state != StateSelecting {
			return eff
		}
		it.curX, it.curY = ev.X, ev.Y
		rect := it.DragRect()
		if !rect.Valid() {
			// Too small to count as a selection: revert silently.
			it.state = StateIdle
			eff.Repaint = true
			return eff
		}
		rect.X += it.virtualX
		rect.Y += it.virtualY
		it.selection = &rect
		if it.Mode == ModeRecord {
			// Record mode waits for an explicit start confirmation.
			it.state = StateSelected
			eff.Repaint = true
			return eff
		}
		it.state = StateConfirmed
		eff.Emit = &rect
		eff.Repaint = true
		return eff

	case EventConfirm:
		if it.state == StateSelected && it.selection != nil {
			it.state = StateConfirmed
			eff.Emit = it.selection
			eff.Repaint = true
		}
		return eff
	}

	return eff
}

func (it *Interaction) reset() {
	it.state = StateIdle
	it.selection = nil
	it.startX, it.startY = 0, 0
	it.curX, it.curY = 0, 0
}

// normalizeDrag turns two drag corners into a non-negative rectangle.
func normalizeDrag(x0, y0, x1, y1 int) capture.Region {
	left := x0
	if x1 < left {
		left = x1
	}
	top := y0
	if y1 < top {
		top = y1
	}
	w := x1 - x0
	if w < 0 {
		w = -w
	}
	h := y1 - y0
	if h < 0 {
		h = -h
	}
	return capture.Region{X: left, Y: top, Width: w, Height: h}
}
