package analysis

import (
	"slices"

	"github.com/starford/mystindex/internal/parser"
)

// FoldingRange is an inclusive range of lines that can be collapsed.
type FoldingRange struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Kind      string `json:"kind"`
}

// FoldingRanges returns a range for every token of the given kinds that spans
// more than one line.
func FoldingRanges(tokens []parser.Token, kinds []parser.Kind) []FoldingRange {
	var out []FoldingRange
	for _, t := range tokens {
		if t.Span == nil || t.Span.End-t.Span.Start < 2 || !slices.Contains(kinds, t.Kind) {
			continue
		}
		out = append(out, FoldingRange{
			StartLine: t.Span.Start,
			EndLine:   t.Span.End - 1,
			Kind:      t.Kind.String(),
		})
	}
	return out
}
