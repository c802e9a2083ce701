package parser

import "strings"

// ruleFrontMatter recognizes a YAML block delimited by "---" on the first
// line of the document and "---" or "..." on a later line. Unterminated front
// matter is left to the other rules.
func ruleFrontMatter(s *state, startLine, endLine int, silent bool) bool {
	if startLine != 0 || s.parentType != parentRoot || s.rawLine(0) != "---" {
		return false
	}

	end := -1
	for line := 1; line < endLine; line++ {
		if text := s.rawLine(line); text == "---" || text == "..." {
			end = line
			break
		}
	}
	if end < 0 {
		return false
	}
	if silent {
		return true
	}

	content := s.getLines(1, end, 0, true)
	meta := &FrontMatterMeta{}
	meta.Data, meta.Error = decodeMapping(content, "front matter must be a mapping")

	s.line = end + 1
	s.push(Token{
		Kind:    KindFrontMatter,
		Span:    lineSpan(0, s.line),
		Markup:  "---",
		Content: content,
		Hidden:  true,
		Meta:    meta,
	})
	return true
}

// rawLine returns a line including its indentation, without trailing blanks.
func (s *state) rawLine(line int) string {
	return strings.TrimRight(s.src[s.bMarks[line]:s.eMarks[line]], " \t")
}
