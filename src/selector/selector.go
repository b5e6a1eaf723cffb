package selector

import (
	"context"

	"snapcap/src/capture"
)

// Request configures one overlay invocation.
type Request struct {
	Mode Mode
	// FrozenBackdrop captures one still frame up front and holds it as the
	// overlay background, so the resulting capture ignores desktop changes
	// (tooltips, cursor) that happen during selection. When false the
	// overlay draws a live crosshair with a dim mask instead.
	FrozenBackdrop bool
}

// Selector is the synchronous region-selection API owned by the event
// loop. Select blocks and MUST be invoked only from the single event-loop
// goroutine. Returns (region, cancelled, error); when cancelled is true
// the region is undefined and err is nil.
type Selector interface {
	Select(ctx context.Context, req Request) (capture.Region, bool, error)
}

// NewSelector returns the platform implementation.
func NewSelector() Selector {
	return newPlatformSelector()
}
