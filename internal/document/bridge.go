package document

import (
	"context"
	"errors"
	"fmt"

	"filetool/internal/formats"
	"filetool/internal/logging"
)

// ErrUnsupportedPair is returned for source/target pairs the bridge does not
// convert locally.
var ErrUnsupportedPair = errors.New("conversion not supported locally")

// Config configures the local document bridge.
type Config struct {
	// UniDocAPIKey selects unipdf for text extraction when set.
	UniDocAPIKey string
}

// Bridge converts between text, Markdown, HTML and PDF, and wraps images in
// a PDF page, without any external service.
type Bridge struct {
	extractor Extractor
}

// NewBridge creates a bridge.
func NewBridge(cfg Config) *Bridge {
	return &Bridge{extractor: NewExtractor(cfg.UniDocAPIKey)}
}

// NewBridgeWithExtractor creates a bridge that reads PDFs with ex.
func NewBridgeWithExtractor(ex Extractor) *Bridge {
	return &Bridge{extractor: ex}
}

// textual formats the bridge reads and writes, by canonical extension.
var textual = map[string]bool{"txt": true, "md": true, "htm": true, "pdf": true}

// Supports reports whether src can be converted to dst locally.
func (b *Bridge) Supports(src, dst string) bool {
	src, dst = formats.Canonical(src), formats.Canonical(dst)
	if src == dst {
		return false
	}
	if dst == "pdf" && formats.CategoryOf(src) == formats.CategoryImage {
		return true
	}
	return textual[src] && textual[dst]
}

// Convert converts data from src to dst. PDFs without a text layer return
// ErrExtractionUnsupported.
func (b *Bridge) Convert(ctx context.Context, data []byte, src, dst string) ([]byte, error) {
	if !b.Supports(src, dst) {
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedPair, src, dst)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, dst = formats.Canonical(src), formats.Canonical(dst)
	logging.Debug("Document bridge: %s -> %s (%d bytes)", src, dst, len(data))

	if formats.CategoryOf(src) == formats.CategoryImage {
		return ImageToPDF(data, src)
	}

	text, err := b.read(data, src, dst)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.write(text, src, dst)
}

// read returns the source as the cheapest intermediate for dst: markup is
// kept when the target can use it, everything else becomes plain text.
func (b *Bridge) read(data []byte, src, dst string) (string, error) {
	switch src {
	case "pdf":
		return PDFToText(b.extractor, data)
	case "md":
		if dst == "htm" {
			return string(data), nil
		}
		return MarkdownToText(string(data))
	case "htm":
		if dst == "md" {
			return string(data), nil
		}
		return HTMLToText(string(data))
	default:
		return string(data), nil
	}
}

func (b *Bridge) write(text, src, dst string) ([]byte, error) {
	switch dst {
	case "pdf":
		return TextToPDF(text)
	case "htm":
		if src == "md" {
			out, err := MarkdownToHTML(text)
			return []byte(out), err
		}
		return []byte(TextToHTML(text)), nil
	case "md":
		if src == "htm" {
			out, err := HTMLToMarkdown(text)
			return []byte(out), err
		}
		return []byte(text), nil
	default:
		return []byte(text), nil
	}
}
