package imageproxy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultQuality = 75
	minQuality     = 10
	maxQuality     = 100
	// maxDimension caps requested sizes; larger requests are clamped
	maxDimension = 4096
	// MaxPixels bounds the decoded size of a source image
	MaxPixels = 40_000_000
)

// ErrUnsupportedFormat is returned for bytes that no registered decoder accepts
var ErrUnsupportedFormat = errors.New("imageproxy: unsupported or invalid image format")

// ErrTooLarge is returned for images whose header declares more than MaxPixels
var ErrTooLarge = errors.New("imageproxy: image too large")

// Image is a processed, JPEG encoded image
type Image struct {
	Data   []byte
	Width  int
	Height int
	ETag   string
}

// ContentType of every processed image
const ContentType = "image/jpeg"

// Process decodes data, resizes it and encodes it as JPEG.
// width and height of 0 mean "unconstrained". With both set the image is
// scaled to cover the box and center-cropped. Images are never enlarged.
func Process(data []byte, width, height, quality int) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrUnsupportedFormat)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image bounds", ErrUnsupportedFormat)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	crop, w, h := geometry(src.Bounds(), width, height)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; transparent areas become white rather than black
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ClampQuality(quality)}); err != nil {
		return nil, fmt.Errorf("encode JPEG: %w", err)
	}

	encoded := buf.Bytes()
	sum := sha256.Sum256(encoded)

	return &Image{
		Data:   encoded,
		Width:  w,
		Height: h,
		ETag:   `"` + hex.EncodeToString(sum[:16]) + `"`,
	}, nil
}

// ClampQuality maps q into 10..100; 0 selects the default
func ClampQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < minQuality:
		return minQuality
	case q > maxQuality:
		return maxQuality
	}
	return q
}

// geometry returns the source rectangle to sample and the output size
func geometry(b image.Rectangle, width, height int) (image.Rectangle, int, int) {
	ow, oh := b.Dx(), b.Dy()
	width, height = clampDimension(width), clampDimension(height)

	switch {
	case width == 0 && height == 0:
		return b, ow, oh

	case height == 0:
		if width >= ow {
			return b, ow, oh
		}
		return b, width, max(1, oh*width/ow)

	case width == 0:
		if height >= oh {
			return b, ow, oh
		}
		return b, max(1, ow*height/oh), height
	}

	// cover: the largest centered region with the requested aspect ratio
	cw, ch := ow, oh
	if ow*height > oh*width {
		cw = max(1, oh*width/height)
	} else {
		ch = max(1, ow*height/width)
	}
	x0 := b.Min.X + (ow-cw)/2
	y0 := b.Min.Y + (oh-ch)/2
	crop := image.Rect(x0, y0, x0+cw, y0+ch)

	return crop, min(width, cw), min(height, ch)
}

func clampDimension(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxDimension {
		return maxDimension
	}
	return v
}
