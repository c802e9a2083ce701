package parser

import "strings"

type parentType uint8

const (
	parentRoot parentType = iota
	parentBlockquote
	parentList
	parentParagraph
	parentReference
	parentDiv
)

// state is the line-oriented cursor shared by all block rules.
//
// For every source line it records where the line begins (bMarks), where it
// ends (eMarks), how many bytes of leading whitespace were skipped (tShift)
// and the indentation width in columns with tabs expanded (sCount). Container
// rules rewrite these entries while they tokenize their content and restore
// them afterwards.
type state struct {
	src string

	bMarks  []int
	eMarks  []int
	tShift  []int
	sCount  []int
	bsCount []int

	blkIndent  int
	listIndent int
	line       int
	lineMax    int
	tight      bool
	parentType parentType
	level      int

	tokens []Token
	refs   map[string]Reference
	p      *Parser
}

func newState(src string, p *Parser, refs map[string]Reference) *state {
	s := &state{
		src:        src,
		listIndent: -1,
		parentType: parentRoot,
		refs:       refs,
		p:          p,
	}

	indentFound := false
	start, indent, offset := 0, 0, 0
	for pos := 0; pos < len(src); pos++ {
		ch := src[pos]
		if !indentFound {
			if isSpace(ch) {
				indent++
				if ch == '\t' {
					offset += 4 - offset%4
				} else {
					offset++
				}
				continue
			}
			indentFound = true
		}
		if ch == '\n' || pos == len(src)-1 {
			if ch != '\n' {
				pos++
			}
			s.bMarks = append(s.bMarks, start)
			s.eMarks = append(s.eMarks, pos)
			s.tShift = append(s.tShift, indent)
			s.sCount = append(s.sCount, offset)
			s.bsCount = append(s.bsCount, 0)

			indentFound = false
			indent, offset = 0, 0
			start = pos + 1
		}
	}

	// Sentinel entry so lookups at lineMax stay in bounds.
	s.bMarks = append(s.bMarks, len(src))
	s.eMarks = append(s.eMarks, len(src))
	s.tShift = append(s.tShift, 0)
	s.sCount = append(s.sCount, 0)
	s.bsCount = append(s.bsCount, 0)
	s.lineMax = len(s.bMarks) - 1
	return s
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t'
}

// at returns the byte at pos, or 0 outside the source.
func (s *state) at(pos int) byte {
	if pos < 0 || pos >= len(s.src) {
		return 0
	}
	return s.src[pos]
}

func (s *state) isEmpty(line int) bool {
	if line < 0 || line >= len(s.bMarks) {
		return false
	}
	return s.bMarks[line]+s.tShift[line] >= s.eMarks[line]
}

// isCodeBlock reports whether line is indented enough to be indented code.
func (s *state) isCodeBlock(line int) bool {
	return s.sCount[line]-s.blkIndent >= 4
}

func (s *state) skipEmptyLines(from int) int {
	for ; from < s.lineMax; from++ {
		if s.bMarks[from]+s.tShift[from] < s.eMarks[from] {
			break
		}
	}
	return from
}

func (s *state) skipSpaces(pos int) int {
	for ; pos < len(s.src); pos++ {
		if !isSpace(s.src[pos]) {
			break
		}
	}
	return pos
}

func (s *state) skipSpacesBack(pos, limit int) int {
	if pos <= limit {
		return pos
	}
	for pos > limit {
		pos--
		if !isSpace(s.src[pos]) {
			return pos + 1
		}
	}
	return pos
}

func (s *state) skipChars(pos int, ch byte) int {
	for ; pos < len(s.src); pos++ {
		if s.src[pos] != ch {
			break
		}
	}
	return pos
}

func (s *state) skipCharsBack(pos int, ch byte, limit int) int {
	if pos <= limit {
		return pos
	}
	for pos > limit {
		pos--
		if s.src[pos] != ch {
			return pos + 1
		}
	}
	return pos
}

// lineText returns the line content after its leading indentation.
func (s *state) lineText(line int) string {
	return s.src[s.bMarks[line]+s.tShift[line] : s.eMarks[line]]
}

// getLines joins source lines [begin, end), stripping up to indent columns of
// leading whitespace from each.
func (s *state) getLines(begin, end, indent int, keepLastLF bool) string {
	if begin >= end {
		return ""
	}
	var sb strings.Builder
	for line := begin; line < end; line++ {
		lineIndent := 0
		lineStart := s.bMarks[line]
		first := lineStart
		last := s.eMarks[line]
		if line+1 < end || keepLastLF {
			last++
		}
		if last > len(s.src) {
			last = len(s.src)
		}

		for first < last && lineIndent < indent {
			ch := s.src[first]
			if isSpace(ch) {
				if ch == '\t' {
					lineIndent += 4 - (lineIndent+s.bsCount[line])%4
				} else {
					lineIndent++
				}
			} else if first-lineStart < s.tShift[line] {
				// Container markers masked by tShift count as indentation.
				lineIndent++
			} else {
				break
			}
			first++
		}

		if lineIndent > indent {
			// Partially consumed tab.
			sb.WriteString(strings.Repeat(" ", lineIndent-indent))
		}
		sb.WriteString(s.src[first:last])
	}
	return sb.String()
}

// push appends t, maintaining the nesting level, and returns its index.
func (s *state) push(t Token) int {
	if t.Nesting < 0 {
		s.level--
	}
	t.Level = s.level
	if t.Nesting > 0 {
		s.level++
	}
	s.tokens = append(s.tokens, t)
	return len(s.tokens) - 1
}

// closeSpan records the end line of a container opened at tokens[idx]. It is
// used by containers whose extent is only known after their content has been
// tokenized.
func (s *state) closeSpan(idx, end int) {
	sp := *s.tokens[idx].Span
	sp.End = end
	s.tokens[idx].Span = &sp
}

// terminates reports whether any rule of the named alt chain starts at line.
func (s *state) terminates(chain string, line, endLine int) bool {
	for _, r := range s.p.rules.chain(chain) {
		if r(s, line, endLine, true) {
			return true
		}
	}
	return false
}
