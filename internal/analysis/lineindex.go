package analysis

import "github.com/starford/mystindex/internal/parser"

// LineIndex maps a 0-indexed source line to the positions of the tokens whose
// span covers it. It is built once per parse and never modified.
type LineIndex struct {
	lines [][]int
}

// BuildLineIndex records every spanned token under each line of its span.
// Tokens without a span are skipped.
func BuildLineIndex(tokens []parser.Token) LineIndex {
	n := 0
	for _, t := range tokens {
		if t.Span != nil && t.Span.End > n {
			n = t.Span.End
		}
	}
	lines := make([][]int, n)
	for i, t := range tokens {
		if t.Span == nil {
			continue
		}
		for l := t.Span.Start; l < t.Span.End; l++ {
			lines[l] = append(lines[l], i)
		}
	}
	return LineIndex{lines: lines}
}

// At returns the token positions covering line, outermost first. The result
// must not be modified.
func (li LineIndex) At(line int) []int {
	if line < 0 || line >= len(li.lines) {
		return nil
	}
	return li.lines[line]
}

// Len is one past the last line covered by any token.
func (li LineIndex) Len() int {
	return len(li.lines)
}
