package document

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// blockElements get a trailing newline when HTML is flattened to text.
const blockElements = "p, div, section, article, header, footer, blockquote, pre, " +
	"h1, h2, h3, h4, h5, h6, li, tr, table, ul, ol, hr"

var (
	blankRun   = regexp.MustCompile(`\n{3,}`)
	spaceRun   = regexp.MustCompile(`[ \t\x{00A0}]+`)
	htmlHeader = "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n</head>\n<body>\n"
	htmlFooter = "</body>\n</html>\n"
)

// MarkdownToHTML renders GitHub-flavoured Markdown as a standalone HTML page.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(htmlHeader)
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	buf.WriteString(htmlFooter)
	return buf.String(), nil
}

// HTMLToMarkdown converts an HTML document to Markdown.
func HTMLToMarkdown(src string) (string, error) {
	md, err := htmltomarkdown.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}

// HTMLToText flattens HTML to plain text, one block element per line.
// Scripts, styles and the head are dropped.
func HTMLToText(src string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("head, script, style, noscript, template").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	text := blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text) + "\n", nil
}

// MarkdownToText renders Markdown and flattens the result.
func MarkdownToText(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return HTMLToText(buf.String())
}

// TextToHTML wraps plain text paragraphs in <p> elements.
func TextToHTML(src string) string {
	var buf strings.Builder
	buf.WriteString(htmlHeader)
	for _, para := range splitParagraphs(src) {
		buf.WriteString("<p>")
		buf.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>\n"))
		buf.WriteString("</p>\n")
	}
	buf.WriteString(htmlFooter)
	return buf.String()
}

func splitParagraphs(src string) []string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\f", "\n")
	var out []string
	for _, p := range strings.Split(src, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
