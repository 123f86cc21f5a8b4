package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"filetool/internal/formats"
	"filetool/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the maximum width or height we'll process.
	// Larger images are downscaled right after decoding.
	MaxImageDimension = 16384

	// MaxImagePixels is the maximum total pixels (width * height) we'll
	// decode. A 50MP image uses ~200MB in RGBA.
	MaxImagePixels = 50_000_000
)

var (
	// ErrUnsupportedTarget is returned when the target format cannot be
	// produced from the source, such as raster to SVG.
	ErrUnsupportedTarget = errors.New("unsupported image target")
	// ErrDecode is returned when the source cannot be decoded.
	ErrDecode = errors.New("cannot decode image")
	// ErrTooLarge is returned for images above MaxImagePixels.
	ErrTooLarge = errors.New("image exceeds pixel limit")
)

// Options control a single image conversion.
type Options struct {
	// Quality in (0, 1] for lossy encoders. Zero uses 0.92.
	Quality float64
	// Width and Height request a downscale. A single value keeps the aspect
	// ratio; both fit the image inside the box. Images are never upscaled.
	Width  int
	Height int
	// MaxDimension caps the longest side. Zero disables it.
	MaxDimension int
	// Compress favours smaller output over encoding speed.
	Compress bool
	// Edits are applied after scaling.
	Edits *Edits
}

// ImageDimensions holds image width and height.
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the
// image.
func GetImageDimensions(data []byte) (*ImageDimensions, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &ImageDimensions{Width: config.Width, Height: config.Height}, nil
}

// Transform re-encodes raster images. It is safe for concurrent use.
type Transform struct {
	maxPixels int
}

// NewTransform creates a Transform.
func NewTransform() *Transform {
	return &Transform{maxPixels: MaxImagePixels}
}

// Convert decodes data, draws it at its natural size (or the requested
// downscale), applies edits and encodes it as targetExt. SVG to SVG is
// returned unchanged.
func (t *Transform) Convert(ctx context.Context, data []byte, sourceExt, targetExt string, opts Options) ([]byte, error) {
	src := formats.Canonical(sourceExt)
	dst := formats.Canonical(targetExt)

	if dst == "svg" {
		if src == "svg" {
			return data, nil
		}
		return nil, fmt.Errorf("%w: %s to svg", ErrUnsupportedTarget, src)
	}
	if !canEncode(dst) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTarget, dst)
	}

	img, err := t.Decode(data, src)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img = scale(img, opts)

	if !opts.Edits.IsZero() {
		img, err = opts.Edits.Apply(img)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := encode(img, dst, opts)
	if err != nil {
		return nil, err
	}
	logging.Debug("Encoded %s -> %s: %dx%d, %d bytes", src, dst, img.Bounds().Dx(), img.Bounds().Dy(), len(out))
	return out, nil
}

// Decode decodes data with the Go decoders, falling back to libvips for
// formats they do not cover. Orientation tags are applied.
func (t *Transform) Decode(data []byte, sourceExt string) (image.Image, error) {
	if dims, err := GetImageDimensions(data); err == nil {
		limit := t.maxPixels
		if limit <= 0 {
			limit = MaxImagePixels
		}
		if dims.Width*dims.Height > limit {
			return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, dims.Width, dims.Height)
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return constrain(img), nil
	}

	logging.Debug("Go decoders could not read %s image (%v), trying libvips", sourceExt, err)
	img, vipsErr := decodeWithVips(data)
	if vipsErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, errors.Join(err, vipsErr))
	}
	return constrain(img), nil
}

// constrain downscales images above MaxImageDimension.
func constrain(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= MaxImageDimension && b.Dy() <= MaxImageDimension {
		return img
	}
	logging.Info("Constraining large image from %dx%d", b.Dx(), b.Dy())
	return imaging.Fit(img, MaxImageDimension, MaxImageDimension, imaging.Lanczos)
}

func scale(img image.Image, opts Options) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch {
	case opts.Width > 0 && opts.Height > 0:
		if opts.Width < w || opts.Height < h {
			img = imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)
		}
	case opts.Width > 0 && opts.Width < w:
		img = imaging.Resize(img, opts.Width, 0, imaging.Lanczos)
	case opts.Height > 0 && opts.Height < h:
		img = imaging.Resize(img, 0, opts.Height, imaging.Lanczos)
	}

	if m := opts.MaxDimension; m > 0 {
		b = img.Bounds()
		if b.Dx() > m || b.Dy() > m {
			img = imaging.Fit(img, m, m, imaging.Lanczos)
		}
	}
	return img
}

func canEncode(ext string) bool {
	switch ext {
	case "png", "jpg", "gif", "bmp", "tif", "webp":
		return true
	}
	return false
}

func encode(img image.Image, ext string, opts Options) ([]byte, error) {
	quality := qualityPercent(opts.Quality)

	var buf bytes.Buffer
	var err error
	switch ext {
	case "jpg":
		// JPEG has no alpha channel; flatten onto white
		err = imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(quality))
	case "png":
		level := png.DefaultCompression
		if opts.Compress {
			level = png.BestCompression
		}
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(level))
	case "gif":
		colors := 256
		if opts.Compress {
			colors = max(16, quality*256/100)
		}
		err = imaging.Encode(&buf, img, imaging.GIF, imaging.GIFNumColors(colors))
	case "bmp":
		err = imaging.Encode(&buf, flatten(img), imaging.BMP)
	case "tif":
		err = imaging.Encode(&buf, img, imaging.TIFF)
	case "webp":
		return encodeWebP(img, quality, opts.Compress)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTarget, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ext, err)
	}
	return buf.Bytes(), nil
}

func qualityPercent(q float64) int {
	if q <= 0 || q > 1 {
		q = 0.92
	}
	return max(1, min(100, int(math.Round(q*100))))
}

func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
