package mail

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern        = regexp.MustCompile(`https?://[^\s<>"']+`)
	blockTagPattern   = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|tr|h[1-6])[^>]*>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	spacePattern      = regexp.MustCompile(`[ \t]+`)
	indentPattern     = regexp.MustCompile(`\n +`)
	blankLinesPattern = regexp.MustCompile(`\n{2,}`)

	mailURL, _ = url.Parse("https://mail.google.com/")
)

// CleanText normalises a message body for the model: NFKC normalisation,
// invisible characters removed, URLs shortened to their domain and
// whitespace collapsed.
func CleanText(s string) string {
	s = norm.NFKC.String(s)
	s = stripInvisible(s)
	s = ShortenURLs(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spacePattern.ReplaceAllString(s, " ")
	s = indentPattern.ReplaceAllString(s, "\n")
	s = blankLinesPattern.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// CleanBody converts an HTML body to text when needed, then cleans it.
func CleanBody(body string, isHTML bool) string {
	if isHTML {
		body = HTMLToText(body)
	}
	return CleanText(body)
}

// HTMLToText extracts readable text from an HTML mail body. Readability's
// extraction is used unless it drops most of the text, which happens on
// short notification mails; tags are then stripped directly.
func HTMLToText(doc string) string {
	fallback := stripTags(doc)

	article, err := readability.FromReader(strings.NewReader(doc), mailURL)
	if err != nil {
		return fallback
	}
	text := stripTags(article.Content)
	if len(strings.TrimSpace(text))*2 < len(strings.TrimSpace(fallback)) {
		return fallback
	}
	return text
}

// ShortenURLs replaces every URL with its host, without a leading "www.".
func ShortenURLs(s string) string {
	return urlPattern.ReplaceAllStringFunc(s, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return strings.TrimPrefix(u.Host, "www.")
	})
}

func stripTags(doc string) string {
	s := blockTagPattern.ReplaceAllString(doc, "\n")
	s = tagPattern.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}

func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u034f', '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			return -1
		}
		if unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}
