package document

import (
	"strings"
	"testing"
)

func TestMarkdownToHTML(t *testing.T) {
	out, err := MarkdownToHTML("# Title\n\nSome *emphasis* and a | table |\n\n- item\n")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<!DOCTYPE html>", "<h1>Title</h1>", "<em>emphasis</em>", "<li>item</li>", "</html>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	out, err := HTMLToMarkdown("<h2>Heading</h2><p>Some <strong>bold</strong> text.</p><ul><li>one</li></ul>")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"## Heading", "**bold**", "- one"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	src := `<html><head><title>ignored</title><style>p{color:red}</style></head>
<body><h1>Heading</h1><p>First   paragraph<br>second line</p>
<script>alert(1)</script><ul><li>one</li><li>two</li></ul></body></html>`

	out, err := HTMLToText(src)
	if err != nil {
		t.Fatal(err)
	}

	for _, banned := range []string{"ignored", "color:red", "alert", "<"} {
		if strings.Contains(out, banned) {
			t.Errorf("output contains %q:\n%s", banned, out)
		}
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var nonEmpty []string
	for _, l := range lines {
		if l != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	want := []string{"Heading", "First paragraph", "second line", "one", "two"}
	if strings.Join(nonEmpty, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", nonEmpty, want)
	}
}

func TestMarkdownToText(t *testing.T) {
	out, err := MarkdownToText("# Notes\n\nPlain **bold** words.\n")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "#") || strings.Contains(out, "*") {
		t.Errorf("markup left in output: %q", out)
	}
	if !strings.Contains(out, "Plain bold words.") {
		t.Errorf("output = %q", out)
	}
}

func TestTextToHTML(t *testing.T) {
	out := TextToHTML("a < b\n\nsecond\nline")
	if !strings.Contains(out, "<p>a &lt; b</p>") {
		t.Errorf("first paragraph not escaped: %s", out)
	}
	if !strings.Contains(out, "<p>second<br>\nline</p>") {
		t.Errorf("line break not kept: %s", out)
	}
}
