// Package sanitize cleans user-provided text with bluemonday before it is
// stored. Scenario descriptions and outcome messages may carry limited HTML
// with GM-only passages; chat messages and tag values are plain text.
package sanitize

import (
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	richPolicy     *bluemonday.Policy
	richPolicyOnce sync.Once

	strictPolicy     *bluemonday.Policy
	strictPolicyOnce sync.Once
)

func getRichPolicy() *bluemonday.Policy {
	richPolicyOnce.Do(func() {
		richPolicy = bluemonday.UGCPolicy()
		// GM-only passages: <span data-secret>...</span>, stripped for players.
		richPolicy.AllowAttrs("data-secret").OnElements("span")
		richPolicy.AllowAttrs("class").OnElements("span", "p", "div")
	})
	return richPolicy
}

func getStrictPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// HTML sanitizes rich scenario text, keeping safe formatting and secret
// spans. The output is safe for innerHTML.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	return getRichPolicy().Sanitize(input)
}

var spaceRun = regexp.MustCompile(`[ \t]+`)

// Text strips all markup and returns plain text with runs of spaces
// collapsed and surrounding whitespace trimmed. Clients must render it as
// text, not HTML.
func Text(input string) string {
	if input == "" {
		return ""
	}
	stripped := html.UnescapeString(getStrictPolicy().Sanitize(input))
	return strings.TrimSpace(spaceRun.ReplaceAllString(stripped, " "))
}

// StripSecretsHTML removes GM-only <span data-secret> passages, including
// any spans nested inside them. Markup outside the passages is kept as is.
func StripSecretsHTML(input string) string {
	if !strings.Contains(input, "data-secret") {
		return input
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(input))
	depth := 0 // open spans inside the current secret passage
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF, or markup too broken to continue past.
			return sb.String()
		}
		raw := string(z.Raw())

		switch tt {
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			isSpan := string(name) == "span"
			if depth > 0 {
				if isSpan {
					depth++
				}
				continue
			}
			if isSpan && hasAttr && hasSecretAttr(z) {
				depth = 1
				continue
			}
		case html.EndTagToken:
			if depth > 0 {
				if name, _ := z.TagName(); string(name) == "span" {
					depth--
				}
				continue
			}
		default:
			if depth > 0 {
				continue
			}
		}
		sb.WriteString(raw)
	}
}

func hasSecretAttr(z *html.Tokenizer) bool {
	for {
		key, _, more := z.TagAttr()
		if string(key) == "data-secret" {
			return true
		}
		if !more {
			return false
		}
	}
}
