package parse

import (
	"strings"

	"golang.org/x/net/html"
)

// isHTMLBody reports whether a body candidate is an HTML document rather
// than plain text. Only a leading root tag counts; inline markup inside an
// otherwise plain body is left alone.
func isHTMLBody(body string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), "<html")
}

// stripHTMLTags reduces an HTML document to its text nodes. Every text node
// is emitted with a forced trailing newline; tags, attributes, and comments
// are discarded. Entities are decoded by the tokenizer.
func stripHTMLTags(doc string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte('\n')
		}
	}
}
