package metadata

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// htmlTagPattern detects markup worth converting. Source descriptions mix
// plain text with HTML fragments.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote|table|figure|img)[\s>/]`)

// ContainsHTML reports whether s looks like HTML markup.
func ContainsHTML(s string) bool {
	return htmlTagPattern.MatchString(strings.ToLower(s))
}

// CleanDescription converts HTML descriptions to Markdown for display.
// Plain text is returned trimmed; conversion failures return the input unchanged.
func CleanDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !ContainsHTML(s) {
		return s
	}

	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}

// PlainText strips markup for values written into ComicInfo.xml, which
// readers show verbatim. Block elements become paragraph breaks.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !ContainsHTML(s) {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	collectText(doc, &buf)

	paragraphs := strings.Split(buf.String(), "\n")
	out := paragraphs[:0]
	for _, p := range paragraphs {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

func collectText(n *html.Node, buf *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "figure", "img", "table":
			return
		case "br":
			buf.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, buf)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			buf.WriteString("\n")
		}
	}
}
