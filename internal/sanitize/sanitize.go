// Package sanitize treats generated replies as untrusted text. A reply is
// either rejected as corrupted and replaced with Fallback, or normalized into
// the markup subset the formatter understands. Sanitizing never fails.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Fallback replaces replies classified as corrupted.
const Fallback = "I apologize, but I encountered an issue generating a proper response. Could you please rephrase your question or try again?"

// MinLength is the shortest reply, in runes, that is accepted.
const MinLength = 10

// allowed covers ASCII, every Unicode space separator, and the Arabic blocks
// and presentation forms.
const allowed = `\s\p{Z}\x00-\x7F\x{0600}-\x{06FF}\x{0750}-\x{077F}\x{08A0}-\x{08FF}\x{FB50}-\x{FDFF}\x{FE70}-\x{FEFF}`

var corruptedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[^` + allowed + `]{10,}`),
	regexp.MustCompile(`#{5,}`),
	regexp.MustCompile(`\*{5,}`),
	regexp.MustCompile(`[A-Za-z]{50,}`),
	regexp.MustCompile(`\d{20,}`),
}

var (
	disallowedChars = regexp.MustCompile(`[^` + allowed + `]`)
	hashRun         = regexp.MustCompile(`#{4,}`)
	starRun         = regexp.MustCompile(`\*{4,}`)
	newlineRun      = regexp.MustCompile(`\n{4,}`)
	blankRun        = regexp.MustCompile(`[ \t\f\r\v\p{Zs}]{4,}`)
	quoted          = regexp.MustCompile(`(?s)^"(.*)"$`)
)

var unescaper = strings.NewReplacer(
	`\n`, "\n",
	`\"`, `"`,
	`\'`, `'`,
)

// Sanitize returns the reply to store for raw.
func Sanitize(raw string) string {
	text, _ := Clean(raw)
	return text
}

// Clean is Sanitize that also reports whether raw was rejected.
func Clean(raw string) (string, bool) {
	text := Decode(raw)
	if IsCorrupted(text) {
		return Fallback, true
	}
	text = Normalize(text)
	if utf8.RuneCountInString(text) < MinLength {
		return Fallback, true
	}
	return text, false
}

// Decode undoes the string escaping some backends leave in their replies.
func Decode(raw string) string {
	text := strings.ToValidUTF8(raw, "")
	text = unescaper.Replace(text)
	text = quoted.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, `\\`, `\`)
	decoded := strings.TrimSpace(text)
	if decoded == "" {
		return raw
	}
	return decoded
}

// IsCorrupted reports whether text looks like garbage rather than a reply.
func IsCorrupted(text string) bool {
	if utf8.RuneCountInString(text) < MinLength {
		return true
	}
	for _, pattern := range corruptedPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Normalize strips characters outside the allowed scripts and limits the
// emphasis markers consumed by the formatter.
func Normalize(text string) string {
	text = disallowedChars.ReplaceAllString(text, "")
	text = hashRun.ReplaceAllString(text, "###")
	text = starRun.ReplaceAllString(text, "**")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	text = blankRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
