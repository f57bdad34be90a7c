// Package jsonx recovers JSON payloads from chatty model output.
package jsonx

import (
	"regexp"
	"strings"
)

// fencePattern accepts any language tag ended by a newline, and the common
// SQL and JSON tags ended by a space when the fence is on one line.
var fencePattern = regexp.MustCompile("(?s)^```(?:[A-Za-z0-9_-]*[ \t]*\r?\n|(?i:sql|sqlite|postgres|postgresql|pgsql|json)[ \t]+)?(.*?)\r?\n?```$")

// StripFences removes one surrounding Markdown code fence (```lang ... ```)
// and trims whitespace. Text without a fence is only trimmed.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// FirstObject returns the first balanced {...} object in text after fence
// stripping, ignoring braces inside JSON strings. It reports false when no
// complete object exists.
func FirstObject(text string) (string, bool) {
	text = StripFences(text)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
