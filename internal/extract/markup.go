package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// noiseSelectors are removed before collecting visible text.
var noiseSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "header", "aside",
	"iframe", "svg", "canvas", "form", "button",
}

// Markup strips all markup from an HTML document or fragment and returns the
// visible text, whitespace-normalized and truncated to MarkupChars.
func Markup(data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	root := doc.Find("body").First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	for _, n := range root.Nodes {
		collectText(&b, n)
	}
	return firstNRunes(normalizeWhitespace(b.String()), MarkupChars)
}

// MarkupString is Markup for inline HTML such as feed entry content.
func MarkupString(s string) string {
	return Markup([]byte(s))
}

// Article extracts the main article text of a fetched page, preferring a
// readability pass and falling back to Markup.
func Article(data []byte, pageURL string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = Markup(data)
		}
	}()

	u, err := url.Parse(pageURL)
	if err != nil {
		return Markup(data)
	}
	article, err := readability.FromReader(bytes.NewReader(data), u)
	if err != nil {
		return Markup(data)
	}
	text = firstNRunes(normalizeWhitespace(article.TextContent), MarkupChars)
	if strings.TrimSpace(text) == "" {
		return Markup(data)
	}
	return text
}

func collectText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br", "hr":
			b.WriteString("\n")
		case "p", "div", "section", "article", "main", "li", "tr", "table",
			"ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote", "table":
			b.WriteString("\n\n")
		case "li", "tr", "div":
			b.WriteString("\n")
		}
	}
}

// normalizeWhitespace collapses runs of spaces inside lines and keeps at
// most one blank line between paragraphs.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.Join(strings.Fields(line), " ")
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			if len(out) == 0 {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, trimmed)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
