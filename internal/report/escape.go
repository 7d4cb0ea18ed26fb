package report

import "strings"

// EscapeCell makes text safe inside a markdown table cell: pipes are escaped and
// line breaks collapse to spaces.
func EscapeCell(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) + 8)

	for _, r := range text {
		switch r {
		case '|':
			result.WriteString(`\|`)
		case '\n', '\r', '\t':
			result.WriteRune(' ')
		default:
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}

// Quote prefixes every line of text so it renders as one markdown block quote.
func Quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n> ")
}
