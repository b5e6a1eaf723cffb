package compositor

import (
	"context"
	"image"
	"log"
	"time"

	"golang.org/x/image/draw"

	"snapcap/src/capture"
)

// DefaultFrameRate is used when the caller supplies no rate.
const DefaultFrameRate = 30

// Source supplies live frames. Frame returns (nil, false) when the track
// is paused or has ended; the compositor skips that tick without error.
type Source interface {
	Frame() (*image.RGBA, bool)
}

// Sink consumes composited frames, normally the encoder.
type Sink interface {
	WriteFrame(*image.RGBA) error
}

// Compositor crops and scales live frames into a fixed-size destination
// buffer at a steady cadence. The destination is allocated once with both
// dimensions forced even (encoders reject odd sizes) and never resizes
// for the life of the session.
type Compositor struct {
	src      Source
	sink     Sink
	srcRect  image.Rectangle
	dest     *image.RGBA
	interval time.Duration
	scaler   draw.Scaler
	ticks    int
	skipped  int
}

// EvenDim truncates a dimension down to the nearest even number.
func EvenDim(n int) int { return n &^ 1 }

// New builds a compositor for the given selection. scale rescales the
// logical selection into the source's physical pixel space and defaults
// to 1; fps defaults to DefaultFrameRate.
func New(src Source, sink Sink, region capture.Region, scale float64, fps int) *Compositor {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	phys := region.Scaled(scale)
	return &Compositor{
		src:      src,
		sink:     sink,
		srcRect:  phys.Bounds(),
		dest:     image.NewRGBA(image.Rect(0, 0, EvenDim(region.Width), EvenDim(region.Height))),
		interval: time.Second / time.Duration(fps),
		scaler:   draw.ApproxBiLinear,
	}
}

// Size returns the fixed destination dimensions.
func (c *Compositor) Size() (int, int) {
	return c.dest.Bounds().Dx(), c.dest.Bounds().Dy()
}

// Tick pulls one frame and pushes one composited frame to the sink.
// A paused or ended source is not an error.
func (c *Compositor) Tick() error {
	c.ticks++
	frame, ok := c.src.Frame()
	if !ok {
		c.skipped++
		return nil
	}
	c.scaler.Scale(c.dest, c.dest.Bounds(), frame, c.srcRect, draw.Src, nil)
	return c.sink.WriteFrame(c.dest)
}

// Run ticks at the configured cadence until ctx is cancelled or the sink
// fails. Sink failures abort the loop; the session owner decides what to
// do with the error.
func (c *Compositor) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("compositor: stopped after %d ticks (%d skipped)", c.ticks, c.skipped)
			return nil
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				return err
			}
		}
	}
}
