package parser

import (
	"regexp"
	"strings"
)

// TargetNamePattern matches a complete target name: 1 to 100 characters from
// a restricted set.
const TargetNamePattern = `^[a-zA-Z0-9|@<>*./_+:-]{1,100}$`

var targetLineRe = regexp.MustCompile(`^\(([a-zA-Z0-9|@<>*./_+:-]{1,100})\)=\s*$`)

// ruleLineComment recognizes "% text" comment lines. Contiguous comment lines
// form one token.
func ruleLineComment(s *state, startLine, endLine int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]
	max := s.eMarks[startLine]

	if s.isCodeBlock(startLine) || s.at(pos) != '%' {
		return false
	}
	if silent {
		return true
	}

	lines := []string{strings.TrimRight(s.src[pos+1:max], " \t")}
	next := startLine + 1
	for ; next < endLine; next++ {
		pos = s.bMarks[next] + s.tShift[next]
		if s.at(pos) != '%' {
			break
		}
		lines = append(lines, strings.TrimRight(s.src[pos+1:s.eMarks[next]], " \t"))
	}

	s.line = next
	s.push(Token{
		Kind:    KindLineComment,
		Span:    lineSpan(startLine, next),
		Markup:  "%",
		Content: strings.Join(lines, "\n"),
	})
	return true
}

// ruleBlockBreak recognizes "+++" block breaks. Text after the marker run is
// kept as the token content.
func ruleBlockBreak(s *state, startLine, _ int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]
	max := s.eMarks[startLine]

	if s.isCodeBlock(startLine) || s.at(pos) != '+' {
		return false
	}
	pos++

	count := 1
	for pos < max {
		ch := s.src[pos]
		if ch != '+' && !isSpace(ch) {
			break
		}
		if ch == '+' {
			count++
		}
		pos++
	}
	if count < 3 {
		return false
	}
	if silent {
		return true
	}

	s.line = startLine + 1
	s.push(Token{
		Kind:    KindBlockBreak,
		Span:    lineSpan(startLine, s.line),
		Markup:  strings.Repeat("+", count),
		Content: strings.TrimSpace(s.src[pos:max]),
	})
	return true
}

// ruleTarget recognizes "(name)=" target lines.
func ruleTarget(s *state, startLine, _ int, silent bool) bool {
	if s.isCodeBlock(startLine) {
		return false
	}

	text := strings.TrimSpace(s.lineText(startLine))
	if !strings.HasPrefix(text, "(") || !strings.HasSuffix(text, ")=") {
		return false
	}
	m := targetLineRe.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	if silent {
		return true
	}

	s.line = startLine + 1
	s.push(Token{
		Kind:    KindTarget,
		Span:    lineSpan(startLine, s.line),
		Content: m[1],
	})
	return true
}
