package richtext

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Sanitizer turns admin-authored reply text into safe message HTML.
type Sanitizer struct {
	policy *bluemonday.Policy
	md     goldmark.Markdown
}

// NewSanitizer creates a sanitizer with the reply formatting policy.
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("b", "strong", "i", "em", "u", "s", "del")
	p.AllowElements("p", "br", "hr")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("blockquote", "code", "pre")
	p.AllowElements("h1", "h2", "h3", "h4")

	p.AllowElements("a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{
		policy: p,
		md:     goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough)),
	}
}

// Render prepares reply text for storage. HTML input is sanitized, text that
// looks like markdown is rendered first, and anything else is kept as plain
// text with HTML special characters escaped.
func (s *Sanitizer) Render(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return ""
	case IsHTML(text):
		return s.policy.Sanitize(text)
	case IsMarkdown(text):
		var buf strings.Builder
		if err := s.md.Convert([]byte(text), &buf); err != nil {
			return html.EscapeString(text)
		}
		return strings.TrimSpace(s.policy.Sanitize(buf.String()))
	default:
		return html.EscapeString(text)
	}
}

// Sanitize applies the policy without any markdown conversion.
func (s *Sanitizer) Sanitize(input string) string {
	return s.policy.Sanitize(input)
}

// IsHTML checks if the content appears to be HTML.
func IsHTML(content string) bool {
	htmlTags := []string{"<p>", "<br", "<div>", "<span>", "<b>", "<i>", "<strong>", "<em>", "<ul>", "<ol>", "<li>", "<a ", "<blockquote>"}

	lower := strings.ToLower(content)
	for _, tag := range htmlTags {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// IsMarkdown reports whether content carries at least two markdown markers.
func IsMarkdown(content string) bool {
	patterns := []string{"**", "__", "`", "# ", "- ", "* ", "1. ", "](", "\n\n"}

	count := 0
	for _, pattern := range patterns {
		if strings.Contains(content, pattern) {
			count++
		}
	}
	return count >= 2
}

// StripHTML removes all tags, for plain-text email parts and previews.
func StripHTML(input string) string {
	return html.UnescapeString(bluemonday.StrictPolicy().Sanitize(input))
}

// Preview returns at most n runes of the plain text of input.
func Preview(input string, n int) string {
	plain := strings.Join(strings.Fields(StripHTML(input)), " ")
	runes := []rune(plain)
	if len(runes) <= n {
		return plain
	}
	return string(runes[:n]) + "…"
}
