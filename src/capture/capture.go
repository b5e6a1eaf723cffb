package capture

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/kbinani/screenshot"
	"github.com/nfnt/resize"
)

// ErrNoSource is returned when no capturable display can be enumerated,
// e.g. headless session or screen-recording permission denied.
var ErrNoSource = errors.New("no capture source available")

// MinSelectionSpan is the smallest selection dimension treated as a real
// selection. Anything smaller is an accidental click and is discarded.
const MinSelectionSpan = 5

const thumbnailWidth = 320

// Region is a rectangular screen region in logical pixels. ScaleFactor is
// the device pixel ratio of the display the region belongs to; it is
// attached when the region crosses into the recording process, because
// capture buffers are DPI-scaled while pointer coordinates are not.
type Region struct {
	X           int
	Y           int
	Width       int
	Height      int
	ScaleFactor float64
}

// Valid reports whether the region is large enough to act on.
func (r Region) Valid() bool {
	return r.Width >= MinSelectionSpan && r.Height >= MinSelectionSpan
}

// Scaled returns the region rescaled into physical pixel space.
// A zero or negative factor is treated as 1.
func (r Region) Scaled(factor float64) Region {
	if factor <= 0 {
		factor = 1
	}
	return Region{
		X:           int(math.Round(float64(r.X) * factor)),
		Y:           int(math.Round(float64(r.Y) * factor)),
		Width:       int(math.Round(float64(r.Width) * factor)),
		Height:      int(math.Round(float64(r.Height) * factor)),
		ScaleFactor: 1,
	}
}

// Bounds returns the region as an image.Rectangle.
func (r Region) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Source describes one capturable display.
type Source struct {
	ID        int
	Name      string
	Bounds    image.Rectangle
	Thumbnail image.Image
}

// ListSources enumerates the active displays with a small preview image
// for each. Returns ErrNoSource when nothing is capturable.
func ListSources() ([]Source, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoSource
	}
	sources := make([]Source, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		s := Source{
			ID:     i,
			Name:   fmt.Sprintf("display-%d", i),
			Bounds: b,
		}
		if img, err := screenshot.CaptureRect(b); err == nil {
			s.Thumbnail = resize.Resize(thumbnailWidth, 0, img, resize.Bilinear)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

// SourceIDFor picks the source whose bounds contain the region's
// center, so a recording follows the display it was drawn on rather
// than always the primary. Falls back to the first source.
func SourceIDFor(sources []Source, r Region) int {
	if len(sources) == 0 {
		return 0
	}
	center := image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
	for _, s := range sources {
		if center.In(s.Bounds) {
			return s.ID
		}
	}
	return sources[0].ID
}

// StillFrame captures a full still of the given display at its native
// (physical) resolution.
func StillFrame(sourceID int) (*image.RGBA, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoSource
	}
	if sourceID < 0 || sourceID >= n {
		return nil, fmt.Errorf("capture: unknown source %d: %w", sourceID, ErrNoSource)
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(sourceID))
	if err != nil {
		return nil, fmt.Errorf("capture: still frame failed: %w", err)
	}
	return img, nil
}

// CaptureRect captures an arbitrary virtual-screen rectangle.
func CaptureRect(rect image.Rectangle) (*image.RGBA, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, ErrNoSource
	}
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("capture: rect capture failed: %w", err)
	}
	return img, nil
}

// DisplayBounds returns the logical bounds of a display.
func DisplayBounds(sourceID int) (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 || sourceID < 0 || sourceID >= n {
		return image.Rectangle{}, ErrNoSource
	}
	return screenshot.GetDisplayBounds(sourceID), nil
}

// DisplayScaleFactor derives the device pixel ratio of a display by
// comparing a physical capture against the logical display bounds.
func DisplayScaleFactor(sourceID int) float64 {
	bounds, err := DisplayBounds(sourceID)
	if err != nil || bounds.Dx() == 0 {
		return 1
	}
	img, err := StillFrame(sourceID)
	if err != nil {
		return 1
	}
	return scaleRatio(img.Bounds().Dx(), bounds.Dx())
}

// CropStill crops a logical-pixel region out of a physical still frame.
// The region is rescaled by physicalWidth/logicalWidth first, so crops
// stay accurate on high-DPI displays. The returned image always owns its
// pixels; the source still can be released afterwards.
func CropStill(still *image.RGBA, region Region, logicalBounds image.Rectangle) (*image.RGBA, error) {
	if !region.Valid() {
		return nil, fmt.Errorf("capture: region %dx%d below minimum span", region.Width, region.Height)
	}
	factor := scaleRatio(still.Bounds().Dx(), logicalBounds.Dx())
	phys := region.Scaled(factor).Bounds().Intersect(still.Bounds())
	if phys.Empty() {
		return nil, fmt.Errorf("capture: region outside display bounds")
	}
	out := image.NewRGBA(image.Rect(0, 0, phys.Dx(), phys.Dy()))
	for y := 0; y < phys.Dy(); y++ {
		srcOff := still.PixOffset(phys.Min.X, phys.Min.Y+y)
		dstOff := out.PixOffset(0, y)
		copy(out.Pix[dstOff:dstOff+phys.Dx()*4], still.Pix[srcOff:srcOff+phys.Dx()*4])
	}
	return out, nil
}

func scaleRatio(physical, logical int) float64 {
	if logical <= 0 || physical <= 0 {
		return 1
	}
	return float64(physical) / float64(logical)
}
