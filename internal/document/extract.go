package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"filetool/internal/logging"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

var (
	// ErrExtractionUnsupported is returned when a PDF has no extractable
	// text layer. It is final: no other backend is tried.
	ErrExtractionUnsupported = errors.New("PDF has no extractable text")

	// ErrInvalidPDF is returned when the input cannot be parsed as a PDF.
	ErrInvalidPDF = errors.New("invalid PDF")
)

// Extractor returns the plain text of each page of a PDF, in page order.
type Extractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// PlainExtractor reads text with the pure-Go ledongthuc/pdf reader.
type PlainExtractor struct{}

// ExtractPages implements Extractor.
func (PlainExtractor) ExtractPages(data []byte) (pages []string, err error) {
	// The reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText(p))
	}
	return pages, nil
}

// pageText walks the content stream the way lpdf's GetPlainText does, but
// decodes identity-mapped CID fonts itself. lpdf's bfrange decoder only
// offsets the low byte, which turns every code above U+00FF into a
// control character.
func pageText(p lpdf.Page) string {
	decoders := map[string]func(string) string{}
	for _, name := range p.Fonts() {
		font := p.Font(name)
		if identityUCS(font) {
			decoders[name] = decodeUTF16BE
			continue
		}
		decoders[name] = font.Encoder().Decode
	}

	var b strings.Builder
	decode := func(raw string) string { return raw }
	lpdf.Interpret(p.V.Key("Contents"), func(stk *lpdf.Stack, op string) {
		n := stk.Len()
		args := make([]lpdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "T*":
			b.WriteByte('\n')
		case "Tf":
			if n != 2 {
				return
			}
			if d, ok := decoders[args[0].Name()]; ok {
				decode = d
			} else {
				decode = func(raw string) string { return raw }
			}
		case "Tj", "'", "\"":
			if n > 0 {
				b.WriteString(decode(args[n-1].RawString()))
			}
		case "TJ":
			if n == 0 {
				return
			}
			arr := args[0]
			for i := 0; i < arr.Len(); i++ {
				if x := arr.Index(i); x.Kind() == lpdf.String {
					b.WriteString(decode(x.RawString()))
				}
			}
		}
	})
	return b.String()
}

// identityUCS reports whether font is a Type0 Identity-H font whose
// ToUnicode map is the single range <0000> <FFFF> <0000>, so that each
// two-byte code is its own UTF-16 code unit. gofpdf writes Unicode fonts
// this way.
func identityUCS(font lpdf.Font) bool {
	if font.V.Key("Encoding").Name() != "Identity-H" {
		return false
	}
	toUnicode := font.V.Key("ToUnicode")
	if toUnicode.Kind() != lpdf.Stream {
		return false
	}
	rd := toUnicode.Reader()
	defer rd.Close()
	raw, err := io.ReadAll(rd)
	if err != nil {
		return false
	}
	cmap := strings.Join(strings.Fields(string(raw)), " ")
	return strings.Contains(cmap, "1 beginbfrange <0000> <FFFF> <0000> endbfrange") &&
		!strings.Contains(cmap, "beginbfchar")
}

func decodeUTF16BE(raw string) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return string(utf16.Decode(units))
}

// UniDocExtractor reads text with unipdf. It needs a metered license key.
type UniDocExtractor struct{}

// NewUniDocExtractor registers the metered key with unipdf.
func NewUniDocExtractor(apiKey string) (*UniDocExtractor, error) {
	if err := license.SetMeteredKey(apiKey); err != nil {
		return nil, fmt.Errorf("failed to set unidoc license: %w", err)
	}
	return &UniDocExtractor{}, nil
}

// ExtractPages implements Extractor.
func (*UniDocExtractor) ExtractPages(data []byte) ([]string, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	n, err := reader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// NewExtractor picks unipdf when a license key is configured and the
// pure-Go reader otherwise.
func NewExtractor(uniDocKey string) Extractor {
	if uniDocKey == "" {
		return PlainExtractor{}
	}
	ex, err := NewUniDocExtractor(uniDocKey)
	if err != nil {
		logging.Warn("UniDoc extractor unavailable, using plain reader: %v", err)
		return PlainExtractor{}
	}
	logging.Info("Using UniDoc for PDF text extraction")
	return ex
}

// PDFToText extracts text from every page and joins pages with
// PageSeparator. A document whose pages are all blank returns
// ErrExtractionUnsupported.
func PDFToText(ex Extractor, data []byte) (string, error) {
	pages, err := ex.ExtractPages(data)
	if err != nil {
		return "", err
	}

	empty := true
	for i, p := range pages {
		pages[i] = strings.TrimSpace(p)
		if pages[i] != "" {
			empty = false
		}
	}
	if empty {
		return "", ErrExtractionUnsupported
	}
	return strings.Join(pages, PageSeparator), nil
}
