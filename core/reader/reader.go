// Package reader gets an opaque token string out of a camera stream or an
// uploaded image of a QR code.
package reader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"regexp"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Strategy is how a platform acquires a code.
type Strategy string

const (
	StrategyCamera Strategy = "camera"
	StrategyUpload Strategy = "upload"
)

// ErrNoCode means a frame stream ended without a readable code.
var ErrNoCode = errors.New("no QR code found")

// continuous scanning is unreliable on iOS browsers
var uploadOnly = regexp.MustCompile(`iPad|iPhone|iPod`)

func SelectStrategy(userAgent string) Strategy {
	if uploadOnly.MatchString(userAgent) {
		return StrategyUpload
	}
	return StrategyCamera
}

var hints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

// DecodeImage reads a QR code from img.
func DecodeImage(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", false
	}
	return res.GetText(), true
}

// ScanImage decodes a PNG, JPEG or GIF and reads the QR code in it. Any
// failure is reported as no token, never as an empty one.
func ScanImage(r io.Reader) (string, bool) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", false
	}
	text, ok := DecodeImage(img)
	if !ok || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// ScanDataURL handles data:image/...;base64, uploads.
func ScanDataURL(s string) (string, bool) {
	meta, data, found := strings.Cut(strings.TrimSpace(s), ",")
	if !found || !strings.HasPrefix(meta, "data:image/") || !strings.HasSuffix(meta, ";base64") {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", false
	}
	return ScanImage(bytes.NewReader(raw))
}

// ScanStream reads frames until one holds a code, calls onScan once with it
// and stops consuming frames.
func ScanStream(ctx context.Context, frames <-chan image.Image, onScan func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return ErrNoCode
			}
			if frame == nil {
				continue
			}
			if text, ok := DecodeImage(frame); ok && text != "" {
				onScan(text)
				return nil
			}
		}
	}
}

// Source supplies the platform's capture paths. Either func may be nil.
type Source struct {
	UserAgent string
	Camera    func(ctx context.Context) (<-chan image.Image, error)
	Upload    func(ctx context.Context) (io.Reader, error)
}

// Acquire uses the platform's strategy. When the camera cannot start it
// falls back to the upload path.
func Acquire(ctx context.Context, src Source) (string, bool) {
	if SelectStrategy(src.UserAgent) == StrategyCamera && src.Camera != nil {
		frames, err := src.Camera(ctx)
		if err == nil {
			var scanned string
			if err := ScanStream(ctx, frames, func(s string) { scanned = s }); err != nil {
				return "", false
			}
			return scanned, true
		}
		log.Printf("[READER] camera unavailable, falling back to upload: %v\n", err)
	}
	if src.Upload == nil {
		return "", false
	}
	r, err := src.Upload(ctx)
	if err != nil {
		return "", false
	}
	return ScanImage(r)
}
