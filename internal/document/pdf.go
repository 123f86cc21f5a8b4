package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"filetool/internal/formats"
	"filetool/internal/media"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
)

// ErrUnencodableText is returned by TextToPDF when the text holds
// characters the embedded font has no glyph for.
var ErrUnencodableText = errors.New("text contains characters the PDF font cannot render")

// textFontName is the family name the embedded Go Regular font is
// registered under.
const textFontName = "goregular"

var textFont = sync.OnceValues(func() (*sfnt.Font, error) {
	return sfnt.Parse(goregular.TTF)
})

// Text page layout, in points.
const (
	PageWidth    = 600.0
	PageHeight   = 800.0
	MarginLeft   = 40.0
	MarginTop    = 40.0
	FontSize     = 12.0
	LineHeight   = 16.0
	LinesPerPage = 46
	MaxLineChars = 90
	// PageSeparator joins the text of consecutive pages. A line holding
	// only a form feed starts a new page in TextToPDF.
	PageSeparator = "\n\f\n"
)

// TextToPDF lays text out as left-aligned lines on fixed-size pages.
// Lines longer than MaxLineChars are wrapped. Empty text gives one blank
// page. Text is set in an embedded Unicode font (Latin, Greek, Cyrillic);
// any other script returns ErrUnencodableText.
func TextToPDF(text string) ([]byte, error) {
	lines := wrapLines(text)
	if err := checkGlyphs(lines); err != nil {
		return nil, err
	}
	pages := paginate(lines)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddUTF8FontFromBytes(textFontName, "", goregular.TTF)
	pdf.SetFont(textFontName, "", FontSize)

	for _, page := range pages {
		pdf.AddPage()
		for i, line := range page {
			if line == "" {
				continue
			}
			pdf.Text(MarginLeft, MarginTop+float64(i+1)*LineHeight-4, line)
		}
	}

	return output(pdf)
}

// checkGlyphs fails on the first rune the text font cannot draw. Control
// characters are not drawn and are skipped.
func checkGlyphs(lines []string) error {
	f, err := textFont()
	if err != nil {
		return fmt.Errorf("failed to load text font: %w", err)
	}
	var buf sfnt.Buffer
	for n, line := range lines {
		for _, r := range line {
			if unicode.IsControl(r) {
				continue
			}
			idx, err := f.GlyphIndex(&buf, r)
			if err != nil || idx == 0 {
				return fmt.Errorf("%w: %q (U+%04X) on line %d", ErrUnencodableText, r, r, n+1)
			}
		}
	}
	return nil
}

// wrapLines splits text into display lines of at most MaxLineChars runes.
// Form-feed lines are kept as page break markers.
func wrapLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if raw == "\f" {
			lines = append(lines, "\f")
			continue
		}
		lines = append(lines, wrapLine(strings.TrimRight(raw, " "), MaxLineChars)...)
	}
	return lines
}

// wrapLine breaks at the last space within the budget, or hard-splits
// words longer than the budget.
func wrapLine(line string, limit int) []string {
	if utf8.RuneCountInString(line) <= limit {
		return []string{line}
	}

	var out []string
	runes := []rune(line)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > 0; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimRight(string(runes[:cut]), " "))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// paginate groups lines into pages of LinesPerPage. There is always at
// least one page.
func paginate(lines []string) [][]string {
	var pages [][]string
	var current []string
	for _, line := range lines {
		if line == "\f" {
			pages = append(pages, current)
			current = nil
			continue
		}
		if len(current) == LinesPerPage {
			pages = append(pages, current)
			current = nil
		}
		current = append(current, line)
	}
	if current != nil || len(pages) == 0 {
		pages = append(pages, current)
	}
	return pages
}

// ImageToPDF embeds an image as the only content of a single page sized to
// its pixel dimensions. JPEG data is embedded as is; other formats are
// re-encoded as PNG first.
func ImageToPDF(data []byte, ext string) ([]byte, error) {
	ext = formats.Canonical(ext)

	var (
		payload []byte
		kind    string
		width   int
		height  int
	)

	if ext == "jpg" {
		dims, err := media.GetImageDimensions(data)
		if err == nil {
			payload, kind, width, height = data, "JPG", dims.Width, dims.Height
		}
	}

	if payload == nil {
		img, err := media.NewTransform().Decode(data, ext)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to re-encode image: %w", err)
		}
		b := img.Bounds()
		payload, kind, width, height = buf.Bytes(), "PNG", b.Dx(), b.Dy()
	}

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}

	w, h := float64(width), float64(height)
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)

	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})

	opts := gofpdf.ImageOptions{ImageType: kind, ReadDpi: false}
	pdf.RegisterImageOptionsReader("image", opts, bytes.NewReader(payload))
	if pdf.Err() {
		return nil, fmt.Errorf("failed to register image: %w", pdf.Error())
	}
	pdf.ImageOptions("image", 0, 0, w, h, false, opts, 0, "")

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	if pdf.Err() {
		return nil, fmt.Errorf("failed to build PDF: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
