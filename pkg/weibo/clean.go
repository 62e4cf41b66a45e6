package weibo

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	fullTextLinkRe = regexp.MustCompile(`<a[^>]*>全文</a>`)
	urlRe          = regexp.MustCompile(`https?://\S+`)
	locationRefRe  = regexp.MustCompile(`[^\s]+·[^\s]+\([^)]*\)`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// CleanText normalizes the HTML text of an mblog into plain prose:
// drops the truncation link, strips markup and bare URLs, removes the
// trailing "city·place(desc)" location reference the mobile site
// appends, and collapses whitespace.
func CleanText(raw string) string {
	s := fullTextLinkRe.ReplaceAllString(raw, "")
	s = stripTags(s)
	s = urlRe.ReplaceAllString(s, "")
	s = locationRefRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripTags walks the token stream and keeps only text nodes. Unlike a
// regex this survives attribute values containing angle brackets.
func stripTags(s string) string {
	var b strings.Builder
	tz := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		if tt == html.TextToken {
			b.Write(tz.Text())
		}
	}
}
