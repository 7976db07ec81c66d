// Package imaging shrinks MMS image attachments to fit handset limits and
// reports the dimensions of received images.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	_ "golang.org/x/image/bmp"  // register decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// Format is an image format bluevia can re-encode.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

const (
	MaxDimension   = 4096
	DefaultQuality = 80
	MaxQuality     = 100
)

// Limits bounds the size of outgoing images. A zero dimension is unbounded.
type Limits struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // JPEG quality 1-100 (default 80).
}

// Enabled reports whether any dimension is bounded.
func (l Limits) Enabled() bool {
	return l.MaxWidth > 0 || l.MaxHeight > 0
}

// Validate checks the limits are within range.
func (l Limits) Validate() error {
	if l.MaxWidth < 0 || l.MaxWidth > MaxDimension {
		return fmt.Errorf("max width must be 0-%d", MaxDimension)
	}
	if l.MaxHeight < 0 || l.MaxHeight > MaxDimension {
		return fmt.Errorf("max height must be 0-%d", MaxDimension)
	}
	return nil
}

// FormatFromContentType returns the re-encodable format for a MIME content type.
func FormatFromContentType(ct string) (Format, bool) {
	ct = strings.ToLower(ct)
	switch {
	case strings.HasPrefix(ct, "image/jpeg"), strings.HasPrefix(ct, "image/jpg"):
		return FormatJPEG, true
	case strings.HasPrefix(ct, "image/png"):
		return FormatPNG, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Info describes an encoded image.
type Info struct {
	Width  int
	Height int
	Format string // decoder name: jpeg, png, gif, bmp, tiff or webp
}

// Inspect reads the dimensions of an encoded image without decoding its pixels.
func Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("reading image header: %w", err)
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Shrink scales a JPEG or PNG image down to fit within l, preserving aspect
// ratio. The second result reports whether data was re-encoded: content that
// is not JPEG or PNG, and images already within l, come back unchanged.
func Shrink(data []byte, contentType string, l Limits) ([]byte, bool, error) {
	if err := l.Validate(); err != nil {
		return nil, false, err
	}
	format, ok := FormatFromContentType(contentType)
	if !ok || !l.Enabled() {
		return data, false, nil
	}

	info, err := Inspect(data)
	if err != nil {
		return nil, false, err
	}
	targetW, targetH := fitWithin(info.Width, info.Height, l.MaxWidth, l.MaxHeight)
	if targetW == info.Width && targetH == info.Height {
		return data, false, nil
	}

	var buf bytes.Buffer
	if err := resize(bytes.NewReader(data), &buf, targetW, targetH, format, l.Quality); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// fitWithin returns the largest size with the source aspect ratio that fits
// in maxW x maxH. It never upscales.
func fitWithin(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW < 1 || srcH < 1 {
		return srcW, srcH
	}
	ratio := 1.0
	if maxW > 0 && srcW > maxW {
		ratio = float64(maxW) / float64(srcW)
	}
	if maxH > 0 && srcH > maxH {
		if r := float64(maxH) / float64(srcH); r < ratio {
			ratio = r
		}
	}
	if ratio == 1.0 {
		return srcW, srcH
	}
	return max(1, int(float64(srcW)*ratio)), max(1, int(float64(srcH)*ratio))
}

func resize(r io.Reader, w io.Writer, targetW, targetH int, format Format, quality int) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return encode(w, dst, format, quality)
}

func encode(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	default:
		if quality <= 0 {
			quality = DefaultQuality
		}
		if quality > MaxQuality {
			quality = MaxQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
}
