//go:build windows

package notification

import (
	"log"
	"runtime"
	"sync"
	"syscall"
	"unsafe"
)

var (
	user32               = syscall.NewLazyDLL("user32.dll")
	procMessageBox       = user32.NewProc("MessageBoxW")
	procCreateWindowEx   = user32.NewProc("CreateWindowExW")
	procDefWindowProc    = user32.NewProc("DefWindowProcW")
	procDestroyWindow    = user32.NewProc("DestroyWindow")
	procShowWindow       = user32.NewProc("ShowWindow")
	procSetWindowPos     = user32.NewProc("SetWindowPos")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
	procSetTimer         = user32.NewProc("SetTimer")
	procKillTimer        = user32.NewProc("KillTimer")
	procRegisterClassEx  = user32.NewProc("RegisterClassExW")
	procUpdateWindow     = user32.NewProc("UpdateWindow")
	procGetMessage       = user32.NewProc("GetMessageW")
	procDispatchMessage  = user32.NewProc("DispatchMessageW")
	procTranslateMessage = user32.NewProc("TranslateMessage")
	procBeginPaint       = user32.NewProc("BeginPaint")
	procEndPaint         = user32.NewProc("EndPaint")
	procDrawText         = user32.NewProc("DrawTextW")
	procLoadCursor       = user32.NewProc("LoadCursorW")
)

const (
	wsPopup          = 0x80000000
	wsVisible        = 0x10000000
	wsExNoActivate   = 0x08000000
	wsExToolwindow   = 0x00000080
	wsExClientEdge   = 0x00000200
	wmDestroy        = 0x0002
	wmPaint          = 0x000F
	wmTimer          = 0x0113
	wmClose          = 0x0010
	wmLButtonDown    = 0x0201
	wmRButtonDown    = 0x0204
	swShow           = 5
	swpNoActivate    = 0x0010
	swpNoMove        = 0x0002
	swpNoSize        = 0x0001
	hwndTopmost      = ^uintptr(0)
	smCyScreen       = 1
	dtWordbreak      = 0x00000010
	colorWindow      = 5
	idcArrow         = 32512
	closeTimerID     = 1
	closeTimerMillis = 3000
)

type wndClassEx struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     syscall.Handle
	HIcon         syscall.Handle
	HCursor       syscall.Handle
	HbrBackground syscall.Handle
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       syscall.Handle
}

type point struct{ X, Y int32 }

type msgStruct struct {
	Hwnd    syscall.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

type rect struct{ Left, Top, Right, Bottom int32 }

type paintStruct struct {
	Hdc         syscall.Handle
	FErase      int32
	RcPaint     rect
	FRestore    int32
	FIncUpdate  int32
	RgbReserved [32]byte
}

var (
	popupText  string
	popupQueue chan string
	popupOnce  sync.Once
	classMu    sync.Mutex
	classReady bool
)

// ShowBlockingError displays a modal, system-modal error dialog and
// returns after the user dismisses it.
func ShowBlockingError(title, message string) {
	titlePtr, _ := syscall.UTF16PtrFromString(title)
	msgPtr, _ := syscall.UTF16PtrFromString(message)
	const mbOK = 0x00000000
	const mbIconError = 0x00000010
	const mbSystemModal = 0x00001000
	procMessageBox.Call(0, uintptr(unsafe.Pointer(msgPtr)), uintptr(unsafe.Pointer(titlePtr)), mbOK|mbIconError|mbSystemModal)
}

// showPopup queues the text for the single popup thread. Popups are
// serialized: the win32 message loop owns its OS thread.
func showPopup(text string) error {
	popupOnce.Do(func() {
		popupQueue = make(chan string, 10)
		go popupThread()
	})
	select {
	case popupQueue <- text:
	default:
		log.Printf("notification: popup queue full, dropping")
	}
	return nil
}

func popupThread() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notification: popup thread panic: %v", r)
		}
	}()
	if err := registerPopupClass(); err != nil {
		log.Printf("notification: class registration failed: %v", err)
		return
	}
	for text := range popupQueue {
		if err := runPopup(text); err != nil {
			log.Printf("notification: popup failed: %v", err)
		}
	}
}

func popupWndProc(hwnd syscall.Handle, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case wmPaint:
		var ps paintStruct
		hdc, _, _ := procBeginPaint.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&ps)))
		r := rect{Left: 10, Top: 10, Right: 390, Bottom: 90}
		textPtr, _ := syscall.UTF16PtrFromString(popupText)
		procDrawText.Call(hdc, uintptr(unsafe.Pointer(textPtr)), uintptr(^uint32(0)), uintptr(unsafe.Pointer(&r)), dtWordbreak)
		procEndPaint.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&ps)))
		return 0
	case wmTimer:
		procKillTimer.Call(uintptr(hwnd), closeTimerID)
		procDestroyWindow.Call(uintptr(hwnd))
		return 0
	case wmLButtonDown, wmRButtonDown:
		// Any click dismisses immediately.
		procKillTimer.Call(uintptr(hwnd), closeTimerID)
		procDestroyWindow.Call(uintptr(hwnd))
		return 0
	case wmClose:
		procDestroyWindow.Call(uintptr(hwnd))
		return 0
	case wmDestroy:
		// Message loop detects the window going away via IsWindow below,
		// so no PostQuitMessage here: the thread is shared across popups.
		return 0
	}
	ret, _, _ := procDefWindowProc.Call(uintptr(hwnd), uintptr(msg), wParam, lParam)
	return ret
}

func registerPopupClass() error {
	classMu.Lock()
	defer classMu.Unlock()
	if classReady {
		return nil
	}
	className, _ := syscall.UTF16PtrFromString("SnapcapNotifyClass")
	cursor, _, _ := procLoadCursor.Call(0, idcArrow)
	wc := wndClassEx{
		CbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
		LpfnWndProc:   syscall.NewCallback(popupWndProc),
		HCursor:       syscall.Handle(cursor),
		HbrBackground: syscall.Handle(colorWindow + 1),
		LpszClassName: className,
	}
	atom, _, _ := procRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc)))
	if atom == 0 {
		return syscall.GetLastError()
	}
	classReady = true
	return nil
}

// runPopup shows one toast in the lower-left corner until the close
// timer fires or the user clicks it, then returns for the next one.
func runPopup(text string) error {
	popupText = text
	className, _ := syscall.UTF16PtrFromString("SnapcapNotifyClass")
	windowName, _ := syscall.UTF16PtrFromString("Capture")

	screenHeight, _, _ := procGetSystemMetrics.Call(smCyScreen)
	x, y := int32(20), int32(screenHeight)-120
	width, height := int32(400), int32(100)

	hwnd, _, _ := procCreateWindowEx.Call(
		wsExNoActivate|wsExToolwindow|wsExClientEdge,
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(windowName)),
		wsPopup|wsVisible,
		uintptr(x), uintptr(y), uintptr(width), uintptr(height),
		0, 0, 0, 0,
	)
	if hwnd == 0 {
		return nil
	}
	procSetWindowPos.Call(hwnd, hwndTopmost, 0, 0, 0, 0, swpNoActivate|swpNoMove|swpNoSize)
	procShowWindow.Call(hwnd, swShow)
	procUpdateWindow.Call(hwnd)
	procSetTimer.Call(hwnd, closeTimerID, closeTimerMillis, 0)

	procIsWindow := user32.NewProc("IsWindow")
	var m msgStruct
	for {
		alive, _, _ := procIsWindow.Call(hwnd)
		if alive == 0 {
			return nil
		}
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if ret == 0 {
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}
}
