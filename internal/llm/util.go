package llm

import (
	"regexp"
	"strings"
)

var fenceRE = regexp.MustCompile("(?s)^```[A-Za-z]*[ \t]*\n?(.*?)\n?```")

// ExtractJSON returns the first JSON object or array in a model response. Markdown
// fences, leading prose and trailing prose are dropped. Text without a JSON value is
// returned trimmed.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRE.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	if value := balanced(text[start:]); value != "" {
		return value
	}
	return strings.TrimSpace(text[start:])
}

// balanced returns the object or array at the start of s, or "" when it is not closed.
func balanced(s string) string {
	if s == "" {
		return ""
	}
	var closing byte
	switch s[0] {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	default:
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
		case s[0]:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
