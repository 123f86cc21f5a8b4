// Package document converts documents locally.
//
// The [Bridge] handles plain text, Markdown, HTML and PDF in any direction,
// and wraps a single image in a PDF page. PDFs are written with gofpdf;
// text is read back with ledongthuc/pdf, or with unipdf when a UniDoc key is
// configured. Markdown is rendered by goldmark, HTML is turned into Markdown
// by html-to-markdown and into text by goquery.
//
// Formats the bridge does not know (docx, odt, rtf) are left to the remote
// backend. A PDF with no text layer is reported as [ErrExtractionUnsupported]
// and never retried elsewhere.
package document
