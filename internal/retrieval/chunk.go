package retrieval

import "strings"

// Chunk splits text into pieces of at most size runes. Paragraphs are packed whole
// when they fit; a paragraph longer than size is cut into windows. Consecutive
// chunks share overlap runes so a sentence on a boundary is searchable from both.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var (
		chunks []string
		cur    []rune
		fresh  bool
	)
	emit := func() {
		chunks = append(chunks, string(cur))
		cur = tail(cur, overlap)
		fresh = false
	}

	for _, para := range paragraphs(text) {
		p := []rune(para)
		if fits(cur, p, size) {
			cur = join(cur, p)
			fresh = true
			continue
		}
		if fresh {
			emit()
			if fits(cur, p, size) {
				cur = join(cur, p)
				fresh = true
				continue
			}
		}
		for len(p) > 0 {
			room := size - len(cur) - separatorLen(cur)
			if room <= 0 {
				cur = nil
				room = size
			}
			take := min(room, len(p))
			cur = join(cur, p[:take])
			p = p[take:]
			fresh = true
			if len(p) > 0 {
				emit()
			}
		}
	}
	if fresh {
		chunks = append(chunks, string(cur))
	}
	return chunks
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if p := strings.Join(strings.Fields(block), " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const separator = "\n\n"

func separatorLen(cur []rune) int {
	if len(cur) == 0 {
		return 0
	}
	return len(separator)
}

func fits(cur, p []rune, size int) bool {
	return len(cur)+separatorLen(cur)+len(p) <= size
}

func join(cur, p []rune) []rune {
	out := make([]rune, 0, len(cur)+len(separator)+len(p))
	out = append(out, cur...)
	if len(cur) > 0 {
		out = append(out, []rune(separator)...)
	}
	return append(out, p...)
}

func tail(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if len(r) <= n {
		return append([]rune(nil), r...)
	}
	return append([]rune(nil), r[len(r)-n:]...)
}
