//go:build !windows

package selector

import (
	"context"
	"fmt"

	"snapcap/src/capture"
)

type stubSelector struct{}

func newPlatformSelector() Selector { return &stubSelector{} }

func (s *stubSelector) Select(ctx context.Context, req Request) (capture.Region, bool, error) {
	return capture.Region{}, false, fmt.Errorf("interactive region selection not implemented for this platform")
}
