// Package clipboard wraps the system clipboard for text and PNG images.
package clipboard

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"sync"

	"golang.design/x/clipboard"
)

var (
	writeMu sync.Mutex
	ready   bool
)

// ErrUnavailable means Init failed or was never called; writes are
// refused instead of panicking inside the backend.
var ErrUnavailable = errors.New("clipboard: not initialized")

func Init() error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := clipboard.Init(); err != nil {
		return err
	}
	ready = true
	return nil
}

// WriteText performs a mutex-guarded clipboard write to prevent
// corruption under parallel writes.
func WriteText(text string) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if !ready {
		return ErrUnavailable
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// WriteImage places a PNG-encoded copy of img on the clipboard.
func WriteImage(img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if !ready {
		return ErrUnavailable
	}
	clipboard.Write(clipboard.FmtImage, buf.Bytes())
	return nil
}
