package risk

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\pL\pN]+`)

	urlPattern   = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+|\b[a-z0-9-]+\.(?:com|net|org|io|ly|me|xyz|ru|co)\b(?:/\S*)?`)
	emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// normalizeText lower-cases text, strips diacritics and collapses everything
// that is not a letter or digit to single spaces. The result is padded with a
// space on both sides so phrase matches can be anchored on token boundaries.
func normalizeText(text string) string {
	// transform chains carry state, so one is built per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, text)
	if err != nil {
		folded = text
	}
	tokens := strings.Fields(strings.ToLower(nonTokenChars.ReplaceAllString(folded, " ")))
	if len(tokens) == 0 {
		return ""
	}
	return " " + strings.Join(tokens, " ") + " "
}

// phraseMatcher finds configured phrases in free text on token boundaries.
type phraseMatcher struct {
	phrases []string // normalized, padded
	display []string // as configured
}

func newPhraseMatcher(phrases []string) *phraseMatcher {
	m := &phraseMatcher{}
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		n := normalizeText(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		m.phrases = append(m.phrases, n)
		m.display = append(m.display, strings.TrimSpace(n))
	}
	return m
}

// Match returns the distinct phrases found in the normalized text, in
// configuration order. The scan is linear in the text for each phrase.
func (m *phraseMatcher) Match(normalized string) []string {
	if normalized == "" {
		return nil
	}
	var hits []string
	for i, p := range m.phrases {
		if strings.Contains(normalized, p) {
			hits = append(hits, m.display[i])
		}
	}
	return hits
}

// contactKinds reports which kinds of off-platform contact details appear in
// text, in a stable order.
func contactKinds(text string) []string {
	var kinds []string
	if phonePattern.MatchString(text) {
		kinds = append(kinds, "phone")
	}
	if emailPattern.MatchString(text) {
		kinds = append(kinds, "email")
	}
	if hasLink(text) {
		kinds = append(kinds, "url")
	}
	return kinds
}

// hasLink reports whether text contains a URL or bare domain. E-mail
// addresses are removed first so their domain part does not count as a link.
func hasLink(text string) bool {
	return urlPattern.MatchString(emailPattern.ReplaceAllString(text, " "))
}
