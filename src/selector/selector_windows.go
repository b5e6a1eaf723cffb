//go:build windows

package selector

import (
	"context"
	"fmt"
	"image"
	"log"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"snapcap/src/capture"

	"github.com/lxn/win"
)

// Global state for the overlay window. The overlay runs a classic win32
// message loop on the calling goroutine, so a single set of globals is
// safe: only one overlay exists at a time.
var (
	ovlHwnd           win.HWND
	ovlMachine        *Interaction
	ovlBackdrop       *image.RGBA
	ovlFrozen         bool
	ovlCrossCursor    win.HCURSOR
	ovlVirtualX       int32
	ovlVirtualY       int32
	ovlResult         chan capture.Region
	ovlCancelled      bool
	ovlScaleFactor    float64
	ovlAppliedPassthr Passthrough
)

const (
	overlayKeyPollTimerID    = 1
	overlayKeyPollIntervalMs = 25
	dimAlpha                 = 120
)

var (
	user32DLL            = syscall.NewLazyDLL("user32.dll")
	procGetAsyncKeyState = user32DLL.NewProc("GetAsyncKeyState")
	procSetWindowLongW   = user32DLL.NewProc("SetWindowLongW")
	procGetWindowLongW   = user32DLL.NewProc("GetWindowLongW")
)

type windowsSelector struct{}

func newPlatformSelector() Selector { return &windowsSelector{} }

func (w *windowsSelector) Select(ctx context.Context, req Request) (capture.Region, bool, error) {
	region, cancelled, err := runOverlay(req)
	if err != nil {
		return capture.Region{}, false, err
	}
	select {
	case <-ctx.Done():
		return capture.Region{}, false, ctx.Err()
	default:
	}
	return region, cancelled, err
}

// runOverlay creates the fullscreen overlay, runs its message loop and
// returns the selected region. The window and its message queue have
// per-thread affinity, so the goroutine stays pinned to one OS thread
// from CreateWindowEx through the last GetMessage.
func runOverlay(req Request) (capture.Region, bool, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	vx := win.GetSystemMetrics(win.SM_XVIRTUALSCREEN)
	vy := win.GetSystemMetrics(win.SM_YVIRTUALSCREEN)
	vw := win.GetSystemMetrics(win.SM_CXVIRTUALSCREEN)
	vh := win.GetSystemMetrics(win.SM_CYVIRTUALSCREEN)
	log.Printf("overlay: virtual screen x=%d y=%d w=%d h=%d mode=%s", vx, vy, vw, vh, req.Mode)

	ovlVirtualX, ovlVirtualY = vx, vy
	ovlFrozen = req.FrozenBackdrop
	ovlBackdrop = nil
	if req.FrozenBackdrop {
		img, err := capture.CaptureRect(image.Rect(int(vx), int(vy), int(vx+vw), int(vy+vh)))
		if err != nil {
			return capture.Region{}, false, fmt.Errorf("overlay: backdrop capture: %w", err)
		}
		ovlBackdrop = img
	}
	// The backdrop must not outlive the overlay, repeated shortcut
	// invocations would otherwise pile up full-screen stills.
	defer func() { ovlBackdrop = nil }()

	ovlMachine = NewInteraction(req.Mode, ovlFrozen, int(vx), int(vy))
	ovlResult = make(chan capture.Region, 1)
	ovlCancelled = false
	ovlScaleFactor = capture.DisplayScaleFactor(0)

	ovlCrossCursor = win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS))

	classNameStr := fmt.Sprintf("SnapcapOverlay_%d", time.Now().UnixNano())
	className := syscall.StringToUTF16Ptr(classNameStr)
	wndClass := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		Style:         win.CS_HREDRAW | win.CS_VREDRAW,
		LpfnWndProc:   syscall.NewCallback(overlayWndProc),
		HInstance:     win.GetModuleHandle(nil),
		HCursor:       ovlCrossCursor,
		HbrBackground: 0,
		LpszClassName: className,
	}
	if win.RegisterClassEx(&wndClass) == 0 {
		return capture.Region{}, false, fmt.Errorf("overlay: failed to register window class")
	}
	defer win.UnregisterClass(className)

	ovlHwnd = win.CreateWindowEx(
		win.WS_EX_TOPMOST|win.WS_EX_LAYERED,
		className,
		syscall.StringToUTF16Ptr("Select region"),
		win.WS_POPUP|win.WS_VISIBLE,
		vx, vy, vw, vh,
		0, 0, win.GetModuleHandle(nil), nil,
	)
	if ovlHwnd == 0 {
		return capture.Region{}, false, fmt.Errorf("overlay: failed to create window")
	}
	defer win.DestroyWindow(ovlHwnd)

	win.SetLayeredWindowAttributes(ovlHwnd, 0, 255, win.LWA_ALPHA)
	applyPassthrough(PassthroughFor(req.Mode, false, ovlFrozen))

	win.ShowWindow(ovlHwnd, win.SW_SHOW)
	win.SetForegroundWindow(ovlHwnd)
	win.BringWindowToTop(ovlHwnd)
	win.SetFocus(ovlHwnd)
	win.UpdateWindow(ovlHwnd)

	if win.SetTimer(ovlHwnd, overlayKeyPollTimerID, overlayKeyPollIntervalMs, 0) == 0 {
		log.Printf("overlay: failed to start key poll timer")
	}

	var msg win.MSG
	for {
		ret := win.GetMessage(&msg, 0, 0, 0)
		if ret == 0 || ret == -1 {
			break
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)

		select {
		case region := <-ovlResult:
			log.Printf("overlay: selection completed: %+v", region)
			return region, false, nil
		default:
		}
		if ovlCancelled {
			log.Printf("overlay: selection cancelled")
			return capture.Region{}, true, nil
		}
	}
	return capture.Region{}, true, nil
}

// applyPassthrough sets the OS click-through mode for the overlay. Called
// synchronously from every transition whose effect changes the mode, per
// the single policy table in state.go.
func applyPassthrough(p Passthrough) {
	if ovlHwnd == 0 {
		return
	}
	const gwlExstyle = ^uintptr(19) // GWL_EXSTYLE = -20
	style, _, _ := procGetWindowLongW.Call(uintptr(ovlHwnd), gwlExstyle)
	if p == PassthroughForward {
		style |= win.WS_EX_TRANSPARENT | win.WS_EX_LAYERED
	} else {
		style &^= win.WS_EX_TRANSPARENT
	}
	procSetWindowLongW.Call(uintptr(ovlHwnd), gwlExstyle, style)
	ovlAppliedPassthr = p
}

func applyEffect(hwnd win.HWND, eff Effect) {
	if eff.Passthrough != ovlAppliedPassthr {
		applyPassthrough(eff.Passthrough)
	}
	if eff.Emit != nil {
		r := *eff.Emit
		r.ScaleFactor = ovlScaleFactor
		ovlResult <- r
	}
	if eff.Cancelled {
		ovlCancelled = true
		win.PostQuitMessage(0)
	}
	if eff.Repaint {
		win.InvalidateRect(hwnd, nil, false)
		win.UpdateWindow(hwnd)
	}
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case win.WM_LBUTTONDOWN:
		win.SetCapture(hwnd)
		x := int(int32(win.LOWORD(uint32(lParam))))
		y := int(int32(win.HIWORD(uint32(lParam))))
		applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventButtonDown, X: x, Y: y}))
		return 0

	case win.WM_MOUSEMOVE:
		x := int(int32(win.LOWORD(uint32(lParam))))
		y := int(int32(win.HIWORD(uint32(lParam))))
		applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventMove, X: x, Y: y}))
		return 0

	case win.WM_LBUTTONUP:
		win.ReleaseCapture()
		x := int(int32(win.LOWORD(uint32(lParam))))
		y := int(int32(win.HIWORD(uint32(lParam))))
		applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventButtonUp, X: x, Y: y}))
		return 0

	case win.WM_RBUTTONDOWN:
		// Secondary button cancels unconditionally.
		applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventCancel}))
		return 0

	case win.WM_KEYDOWN:
		switch wParam {
		case win.VK_ESCAPE:
			applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventCancel}))
		case win.VK_RETURN:
			applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventConfirm}))
		}
		return 0

	case win.WM_TIMER:
		if wParam == overlayKeyPollTimerID {
			handlePolledKeys(hwnd)
		}
		return 0

	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		paintOverlay(hdc)
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_SETCURSOR:
		if ovlCrossCursor != 0 {
			win.SetCursor(ovlCrossCursor)
		}
		return 1

	case win.WM_NCHITTEST:
		return uintptr(win.HTCLIENT)

	case win.WM_DESTROY:
		win.KillTimer(hwnd, overlayKeyPollTimerID)
		// No PostQuitMessage here: the success path returns from
		// runOverlay as soon as the region arrives, and a queued WM_QUIT
		// would cancel the next invocation instantly.
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

// handlePolledKeys catches keys the focused-window path misses when the
// overlay loses keyboard focus to the app underneath.
func handlePolledKeys(hwnd win.HWND) {
	if keyPressed(win.VK_ESCAPE) {
		applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventCancel}))
		return
	}
	if keyPressed(win.VK_RETURN) {
		applyEffect(hwnd, ovlMachine.Transition(Event{Kind: EventConfirm}))
	}
}

func keyPressed(vk int32) bool {
	state, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	s := uint16(state)
	return s&0x8000 != 0 || s&0x0001 != 0
}

func paintOverlay(hdc win.HDC) {
	if ovlFrozen && ovlBackdrop != nil {
		drawBackdrop(hdc, ovlBackdrop)
	} else {
		drawDimMask(hdc)
	}
	drawHints(hdc)
	if ovlMachine.State() == StateSelecting {
		r := ovlMachine.DragRect()
		drawSelectionRectangle(hdc, r)
	} else if sel := ovlMachine.Selection(); sel != nil {
		local := *sel
		local.X -= int(ovlVirtualX)
		local.Y -= int(ovlVirtualY)
		drawSelectionRectangle(hdc, local)
	}
}

func drawSelectionRectangle(hdc win.HDC, r capture.Region) {
	gdi32 := syscall.NewLazyDLL("gdi32.dll")
	createPen := gdi32.NewProc("CreatePen")
	rectangle := gdi32.NewProc("Rectangle")

	pen, _, _ := createPen.Call(0, 2, 0x00D478) // green, PS_SOLID width 2
	oldPen := win.SelectObject(hdc, win.HGDIOBJ(pen))
	oldBrush := win.SelectObject(hdc, win.GetStockObject(win.NULL_BRUSH))

	rectangle.Call(uintptr(hdc), uintptr(r.X), uintptr(r.Y), uintptr(r.X+r.Width), uintptr(r.Y+r.Height))

	win.SelectObject(hdc, oldPen)
	win.SelectObject(hdc, oldBrush)
	win.DeleteObject(win.HGDIOBJ(pen))
}

func drawHints(hdc win.HDC) {
	line1 := "ESC or right-click cancels"
	line2 := "Drag to select a region"
	if ovlMachine.Mode == ModeRecord {
		if ovlMachine.State() == StateSelected {
			line2 = "ENTER starts recording"
		} else {
			line2 = "Drag to select, then ENTER to record"
		}
	}
	win.SetBkMode(hdc, win.TRANSPARENT)
	win.SetTextColor(hdc, win.COLORREF(0x00FFFF))
	win.TextOut(hdc, 16, 16, syscall.StringToUTF16Ptr(line1), int32(len(line1)))
	win.TextOut(hdc, 16, 38, syscall.StringToUTF16Ptr(line2), int32(len(line2)))
}

// drawDimMask shades the whole overlay; the selection rectangle drawn on
// top reads as a cut-out over the live desktop.
func drawDimMask(hdc win.HDC) {
	gdi32 := syscall.NewLazyDLL("gdi32.dll")
	createSolidBrush := gdi32.NewProc("CreateSolidBrush")

	brush, _, _ := createSolidBrush.Call(0x202020)
	var rc win.RECT
	win.GetClientRect(ovlHwnd, &rc)
	win.FillRect(hdc, &rc, win.HBRUSH(brush))
	win.DeleteObject(win.HGDIOBJ(brush))
	win.SetLayeredWindowAttributes(ovlHwnd, 0, dimAlpha, win.LWA_ALPHA)
}

// drawBackdrop blits the frozen screenshot as the overlay background.
func drawBackdrop(hdc win.HDC, img *image.RGBA) {
	win.SetLayeredWindowAttributes(ovlHwnd, 0, 255, win.LWA_ALPHA)

	memDC := win.CreateCompatibleDC(hdc)
	defer win.DeleteDC(memDC)

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	bitmapInfo := win.BITMAPINFO{
		BmiHeader: win.BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
			BiWidth:       int32(width),
			BiHeight:      -int32(height), // top-down
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: win.BI_RGB,
		},
	}

	var pBits unsafe.Pointer
	hBitmap := win.CreateDIBSection(memDC, &bitmapInfo.BmiHeader, win.DIB_RGB_COLORS, &pBits, 0, 0)
	if hBitmap == 0 {
		return
	}
	defer win.DeleteObject(win.HGDIOBJ(hBitmap))

	oldBitmap := win.SelectObject(memDC, win.HGDIOBJ(hBitmap))
	defer win.SelectObject(memDC, oldBitmap)

	stride := (((int32(width)*32 + 31) &^ 31) / 8)
	for y := 0; y < height; y++ {
		rowPtr := (*[1 << 29]byte)(unsafe.Pointer(uintptr(pBits) + uintptr(y)*uintptr(stride)))
		srcOff := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < width; x++ {
			// RGBA to BGRA
			rowPtr[x*4] = img.Pix[srcOff+x*4+2]
			rowPtr[x*4+1] = img.Pix[srcOff+x*4+1]
			rowPtr[x*4+2] = img.Pix[srcOff+x*4]
			rowPtr[x*4+3] = img.Pix[srcOff+x*4+3]
		}
	}

	win.BitBlt(hdc, 0, 0, int32(width), int32(height), memDC, 0, 0, win.SRCCOPY)
}
