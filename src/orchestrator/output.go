package orchestrator

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"snapcap/src/encoder"
)

// ErrEmptyBuffer guards against writing a zero-byte media file.
var ErrEmptyBuffer = errors.New("refusing to write empty output")

// timestampName builds "prefix-20060102-150405.ext" filenames.
func timestampName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", prefix, now.Format("20060102-150405"), ext)
}

// writeStill encodes the image in the configured format and writes it
// under dir with a timestamped name. Returns the full path.
func writeStill(img image.Image, format, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, timestampName("capture", format, time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	switch format {
	case "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 92})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// writeVideo writes the native container buffer, then transcodes when the
// configured format differs. A failed transcode keeps the native file:
// the recording is never lost to a conversion problem.
func writeVideo(buf []byte, format, dir string) (string, error) {
	if len(buf) == 0 {
		return "", ErrEmptyBuffer
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	nativePath := filepath.Join(dir, timestampName("recording", encoder.NativeContainer, time.Now()))
	if err := os.WriteFile(nativePath, buf, 0o644); err != nil {
		return "", err
	}
	if format == "" || format == encoder.NativeContainer {
		return nativePath, nil
	}
	outPath := nativePath[:len(nativePath)-len(encoder.NativeContainer)] + format
	if err := encoder.Transcode(nativePath, outPath, format); err != nil {
		log.Printf("output: transcode to %s failed, keeping native file: %v", format, err)
		return nativePath, fmt.Errorf("%w: %v", errTranscodeKeptNative, err)
	}
	os.Remove(nativePath)
	return outPath, nil
}

// errTranscodeKeptNative marks a non-fatal transcode failure; the
// returned path still points at a playable file.
var errTranscodeKeptNative = errors.New("transcode failed")
