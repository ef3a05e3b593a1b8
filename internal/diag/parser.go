// Package diag turns free-form engine stderr text into structured
// diagnostic records. The engine has no structured logging API of its own;
// this is a best-effort line scanner over its conventional message format.
package diag

import (
	"strings"

	"github.com/ocx/slimlo/internal/convresult"
)

const maxMessageBytes = 1024

var fontNamePhrases = []string{
	"Could not select font",
	"Could not find font",
	"not available",
}

var substitutionPhrases = []string{
	"substitut",
	"replaced",
	"using",
}

// Parse scans captured stderr text line by line and returns the ordered
// diagnostics it found. It never fails: malformed input yields partial or
// empty results, never an error.
func Parse(stderr string) []convresult.Diagnostic {
	if stderr == "" {
		return nil
	}

	var diagnostics []convresult.Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if d, ok := parseLine(line); ok {
			diagnostics = append(diagnostics, d)
		}
	}
	return diagnostics
}

func parseLine(line string) (convresult.Diagnostic, bool) {
	if !strings.Contains(line, "warn:") {
		return convresult.Diagnostic{}, false
	}

	isFont := strings.Contains(line, ":fonts:") || strings.Contains(line, ":vcl.fonts:")

	d := convresult.Diagnostic{
		Severity: "warning",
		Category: "general",
		Message:  extractMessage(line),
	}

	if !isFont {
		return d, true
	}
	d.Category = "font"
	d.Font = extractFontName(line)
	if d.Font != "" {
		d.SubstitutedWith = extractSubstitution(line, d.Font)
	}
	return d, true
}

// extractMessage strips a leading "warn:<category>:<N>:" prefix (three
// colons) and surrounding whitespace, capping the result at maxMessageBytes.
func extractMessage(line string) string {
	msg := line
	if idx := strings.Index(msg, "warn:"); idx >= 0 {
		msg = msg[idx:]
		msg = stripPrefixFields(msg, 3)
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	return msg
}

// stripPrefixFields removes n colon-delimited fields from the start of s,
// e.g. stripPrefixFields("a:b:c:rest", 3) == "rest". If s has fewer than n
// fields, s is returned unchanged.
func stripPrefixFields(s string, n int) string {
	rest := s
	for i := 0; i < n; i++ {
		idx := strings.Index(rest, ":")
		if idx < 0 {
			return s
		}
		rest = rest[idx+1:]
	}
	return rest
}

func extractFontName(line string) string {
	for _, phrase := range fontNamePhrases {
		if idx := findPhraseIndex(line, phrase); idx >= 0 {
			if name, ok := firstQuotedAfter(line, idx+len(phrase)); ok {
				return name
			}
		}
	}
	if idx := strings.Index(line, ":fonts:"); idx >= 0 {
		if name, ok := firstQuotedAfter(line, idx+len(":fonts:")); ok {
			return name
		}
	}
	if idx := strings.Index(line, ":vcl.fonts:"); idx >= 0 {
		if name, ok := firstQuotedAfter(line, idx+len(":vcl.fonts:")); ok {
			return name
		}
	}
	return ""
}

func extractSubstitution(line, fontName string) string {
	anchor := strings.Index(line, `"`+fontName+`"`)
	if anchor < 0 {
		return ""
	}
	tail := line[anchor+len(fontName)+2:]
	for _, phrase := range substitutionPhrases {
		if idx := findPhraseIndex(tail, phrase); idx >= 0 {
			if name, ok := firstQuotedAfter(tail, idx+len(phrase)); ok {
				return name
			}
		}
	}
	return ""
}

// findPhraseIndex is a case-insensitive strings.Index; the engine's message
// casing varies between builds ("Could not select font" vs. lowercase).
func findPhraseIndex(s, phrase string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(phrase))
}

// firstQuotedAfter finds the first "..." substring in s at or after index
// from, returning its contents.
func firstQuotedAfter(s string, from int) (string, bool) {
	if from < 0 || from > len(s) {
		return "", false
	}
	tail := s[from:]
	start := strings.Index(tail, `"`)
	if start < 0 {
		return "", false
	}
	rest := tail[start+1:]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
