package handler

import (
	"strings"
	"testing"
)

func TestRenderMarkdownSanitizesOutput(t *testing.T) {
	html, err := renderMarkdown("**加油** <script>alert(1)</script>\n\nhttps://example.com")
	if err != nil {
		t.Fatalf("render markdown: %v", err)
	}

	out := string(html)
	if !strings.Contains(out, "<strong>加油</strong>") {
		t.Fatalf("expected bold rendering, got %q", out)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected script to be stripped, got %q", out)
	}
	if !strings.Contains(out, `href="https://example.com"`) {
		t.Fatalf("expected bare url to be linkified, got %q", out)
	}
}

func TestRenderMarkdownSupportsTables(t *testing.T) {
	html, err := renderMarkdown("| 周 | 次数 |\n| --- | --- |\n| 1 | 5 |")
	if err != nil {
		t.Fatalf("render markdown: %v", err)
	}
	if !strings.Contains(string(html), "<table>") {
		t.Fatalf("expected GFM table rendering, got %q", string(html))
	}
}
