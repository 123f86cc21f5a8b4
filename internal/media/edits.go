package media

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Edits are simple adjustments applied before encoding.
type Edits struct {
	// Brightness in -100..100.
	Brightness float64
	// OverlayColor tints the whole image, as #rgb or #rrggbb.
	OverlayColor string
	// OverlayOpacity in [0, 1]. Zero with an OverlayColor uses 0.3.
	OverlayOpacity float64
	// OverlayText is drawn in the bottom-left corner.
	OverlayText string
	// TextColor defaults to white.
	TextColor string
}

// IsZero reports whether e changes nothing. A nil Edits is zero.
func (e *Edits) IsZero() bool {
	return e == nil || (e.Brightness == 0 && e.OverlayColor == "" && strings.TrimSpace(e.OverlayText) == "")
}

// Validate checks value ranges and colours.
func (e *Edits) Validate() error {
	if e == nil {
		return nil
	}
	if math.IsNaN(e.Brightness) || e.Brightness < -100 || e.Brightness > 100 {
		return fmt.Errorf("brightness %v out of range -100..100", e.Brightness)
	}
	if math.IsNaN(e.OverlayOpacity) || e.OverlayOpacity < 0 || e.OverlayOpacity > 1 {
		return fmt.Errorf("overlay opacity %v out of range 0..1", e.OverlayOpacity)
	}
	if e.OverlayColor != "" {
		if _, err := ParseHexColor(e.OverlayColor); err != nil {
			return err
		}
	}
	if e.TextColor != "" {
		if _, err := ParseHexColor(e.TextColor); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns img with the edits applied.
func (e *Edits) Apply(img image.Image) (image.Image, error) {
	if e.IsZero() {
		return img, nil
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	out := imaging.Clone(img)

	if e.Brightness != 0 {
		out = imaging.AdjustBrightness(out, e.Brightness)
	}

	if e.OverlayColor != "" {
		c, _ := ParseHexColor(e.OverlayColor)
		opacity := e.OverlayOpacity
		if opacity == 0 {
			opacity = 0.3
		}
		b := out.Bounds()
		tint := imaging.New(b.Dx(), b.Dy(), c)
		out = imaging.Overlay(out, tint, image.Pt(0, 0), opacity)
	}

	if text := strings.TrimSpace(e.OverlayText); text != "" {
		c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		if e.TextColor != "" {
			c, _ = ParseHexColor(e.TextColor)
		}
		out = drawText(out, text, c)
	}

	return out, nil
}

// drawText renders text with the 7x13 bitmap face and scales it to about a
// twentieth of the image height.
func drawText(img *image.NRGBA, text string, c color.NRGBA) *image.NRGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	label := image.NewNRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	b := img.Bounds()
	factor := max(1, b.Dy()/(20*height))
	scaled := imaging.Resize(label, width*factor, height*factor, imaging.NearestNeighbor)

	margin := max(4, b.Dy()/50)
	pos := image.Pt(margin, b.Dy()-scaled.Bounds().Dy()-margin)

	out := imaging.Clone(img)
	draw.Draw(out, scaled.Bounds().Add(pos), scaled, image.Point{}, draw.Over)
	return out
}

// ParseHexColor parses #rgb or #rrggbb.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
