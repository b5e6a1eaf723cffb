package capture

import (
	"image"
	"testing"
)

func TestRegionValid(t *testing.T) {
	tests := []struct {
		name   string
		region Region
		want   bool
	}{
		{"normal", Region{X: 10, Y: 10, Width: 100, Height: 80}, true},
		{"exact minimum", Region{Width: 5, Height: 5}, true},
		{"narrow", Region{Width: 4, Height: 100}, false},
		{"short", Region{Width: 100, Height: 4}, false},
		{"zero", Region{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.region.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v for %+v", got, tt.want, tt.region)
			}
		})
	}
}

func TestRegionScaled(t *testing.T) {
	r := Region{X: 100, Y: 100, Width: 200, Height: 150}
	got := r.Scaled(2.0)
	want := Region{X: 200, Y: 200, Width: 400, Height: 300, ScaleFactor: 1}
	if got != want {
		t.Errorf("Scaled(2.0) = %+v, want %+v", got, want)
	}

	// A missing factor must behave as identity.
	if got := r.Scaled(0); got.Width != 200 || got.X != 100 {
		t.Errorf("Scaled(0) = %+v, want identity", got)
	}

	// Fractional factors round per component.
	if got := (Region{X: 3, Y: 3, Width: 7, Height: 7}).Scaled(1.5); got.X != 5 || got.Width != 11 {
		t.Errorf("Scaled(1.5) = %+v, want X=5 Width=11", got)
	}
}

func TestSourceIDForPicksContainingDisplay(t *testing.T) {
	sources := []Source{
		{ID: 0, Bounds: image.Rect(0, 0, 1920, 1080)},
		{ID: 1, Bounds: image.Rect(1920, 0, 3840, 1080)},
	}

	onSecond := Region{X: 2000, Y: 100, Width: 300, Height: 200}
	if got := SourceIDFor(sources, onSecond); got != 1 {
		t.Errorf("SourceIDFor(second display region) = %d, want 1", got)
	}

	onFirst := Region{X: 100, Y: 100, Width: 300, Height: 200}
	if got := SourceIDFor(sources, onFirst); got != 0 {
		t.Errorf("SourceIDFor(first display region) = %d, want 0", got)
	}

	// A region straddling the boundary follows its center.
	straddling := Region{X: 1800, Y: 100, Width: 400, Height: 200}
	if got := SourceIDFor(sources, straddling); got != 1 {
		t.Errorf("SourceIDFor(straddling region) = %d, want 1", got)
	}

	offscreen := Region{X: -9000, Y: -9000, Width: 100, Height: 100}
	if got := SourceIDFor(sources, offscreen); got != 0 {
		t.Errorf("SourceIDFor(offscreen region) = %d, want first source", got)
	}

	if got := SourceIDFor(nil, onFirst); got != 0 {
		t.Errorf("SourceIDFor(no sources) = %d, want 0", got)
	}
}

func TestCropStillRescalesToPhysicalPixels(t *testing.T) {
	// Physical still is 2x the logical display: a 2.0 device pixel ratio.
	logical := image.Rect(0, 0, 800, 600)
	still := image.NewRGBA(image.Rect(0, 0, 1600, 1200))

	// Mark the expected physical origin so we can verify placement.
	still.Pix[still.PixOffset(200, 200)] = 0xAB

	out, err := CropStill(still, Region{X: 100, Y: 100, Width: 200, Height: 150}, logical)
	if err != nil {
		t.Fatalf("CropStill: %v", err)
	}
	if out.Bounds().Dx() != 400 || out.Bounds().Dy() != 300 {
		t.Errorf("crop size = %dx%d, want 400x300", out.Bounds().Dx(), out.Bounds().Dy())
	}
	if out.Pix[out.PixOffset(0, 0)] != 0xAB {
		t.Errorf("crop origin does not map to physical (200,200)")
	}
}

func TestCropStillRejectsDegenerateRegions(t *testing.T) {
	still := image.NewRGBA(image.Rect(0, 0, 100, 100))
	logical := image.Rect(0, 0, 100, 100)

	if _, err := CropStill(still, Region{Width: 2, Height: 2}, logical); err == nil {
		t.Error("expected error for sub-minimum region")
	}
	if _, err := CropStill(still, Region{X: 500, Y: 500, Width: 50, Height: 50}, logical); err == nil {
		t.Error("expected error for region outside display")
	}
}

func TestCropStillCopiesPixels(t *testing.T) {
	still := image.NewRGBA(image.Rect(0, 0, 100, 100))
	logical := image.Rect(0, 0, 100, 100)
	out, err := CropStill(still, Region{X: 10, Y: 10, Width: 20, Height: 20}, logical)
	if err != nil {
		t.Fatalf("CropStill: %v", err)
	}
	still.Pix[still.PixOffset(10, 10)] = 0xFF
	if out.Pix[out.PixOffset(0, 0)] == 0xFF {
		t.Error("crop aliases the source still; it must own its pixels")
	}
}
