// Package avatar turns an uploaded profile picture into the stored form:
// a Size x Size PNG.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"

	// Registers the JPEG decoder with image.Decode.
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

// Size is the edge length, in pixels, of every stored avatar.
const Size = 250

// ContentType is the media type of Normalize's output.
const ContentType = "image/png"

// MaxPixels caps width*height of an accepted upload. Decoders allocate the
// full pixel buffer from the header alone, so the check runs before
// decoding.
const MaxPixels = 4096 * 4096

var (
	ErrUnsupportedType = errors.New("please upload an image")
	ErrUndecodable     = errors.New("file is not a valid jpg or png image")
	ErrTooLarge        = errors.New("image dimensions are too large")
)

var allowedExtensions = []string{".jpg", ".jpeg", ".png"}

// AllowedExtension reports whether filename ends in .jpg, .jpeg or .png,
// ignoring case.
func AllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Normalize decodes a JPEG or PNG image, scales it to Size x Size and
// re-encodes it as PNG. Aspect ratio is not preserved. Images over
// MaxPixels are rejected with ErrTooLarge before any pixel data is read.
func Normalize(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ErrUndecodable
	}
	if format != "jpeg" && format != "png" {
		return nil, ErrUnsupportedType
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, ErrTooLarge
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrUndecodable
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("avatar: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
