package parser

import "strings"

// ruleDefinition recognizes a link reference definition such as
//
//	[label]: /url "title"
//
// Besides recording the definition in the references table (first label
// wins) it emits a definition token, so every occurrence stays visible in
// the token stream.
func ruleDefinition(s *state, startLine, _ int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]
	max := s.eMarks[startLine]

	if s.isCodeBlock(startLine) || s.at(pos) != '[' {
		return false
	}

	// Quick reject of "[link](url)" and "[label]" without a colon.
	for pos++; pos < max; pos++ {
		if s.src[pos] == ']' && s.src[pos-1] != '\\' {
			if pos+1 == max || s.src[pos+1] != ':' {
				return false
			}
			break
		}
	}

	endLine := s.lineMax
	oldParent := s.parentType
	s.parentType = parentReference
	defer func() { s.parentType = oldParent }()

	next := startLine + 1
	for ; next < endLine && !s.isEmpty(next); next++ {
		if s.sCount[next]-s.blkIndent > 3 || s.sCount[next] < 0 {
			continue
		}
		if s.terminates(chainReference, next, endLine) {
			break
		}
	}

	str := strings.TrimSpace(s.getLines(startLine, next, s.blkIndent, false))
	max = len(str)
	lines := 0

	labelEnd := -1
	for pos = 1; pos < max; pos++ {
		ch := str[pos]
		if ch == '[' {
			return false
		}
		if ch == ']' {
			labelEnd = pos
			break
		}
		if ch == '\n' {
			lines++
		} else if ch == '\\' {
			pos++
			if pos < max && str[pos] == '\n' {
				lines++
			}
		}
	}
	if labelEnd < 0 || labelEnd+1 >= max || str[labelEnd+1] != ':' {
		return false
	}

	for pos = labelEnd + 2; pos < max; pos++ {
		ch := str[pos]
		if ch == '\n' {
			lines++
		} else if !isSpace(ch) {
			break
		}
	}

	dest := parseLinkDestination(str, pos, max)
	if !dest.ok {
		return false
	}
	href := normalizeLink(dest.str)
	if !validateLink(href) {
		return false
	}
	pos = dest.pos
	lines += dest.lines

	destEndPos := pos
	destEndLines := lines

	start := pos
	for ; pos < max; pos++ {
		ch := str[pos]
		if ch == '\n' {
			lines++
		} else if !isSpace(ch) {
			break
		}
	}

	// A title must be separated from the destination by whitespace.
	title := ""
	if t := parseLinkTitle(str, pos, max); pos < max && start != pos && t.ok {
		title = t.str
		pos = t.pos
		lines += t.lines
	} else {
		pos = destEndPos
		lines = destEndLines
	}

	for pos < max && isSpace(str[pos]) {
		pos++
	}
	if pos < max && str[pos] != '\n' && title != "" {
		// Garbage after the title: retry as a definition without one.
		title = ""
		pos = destEndPos
		lines = destEndLines
		for pos < max && isSpace(str[pos]) {
			pos++
		}
	}
	if pos < max && str[pos] != '\n' {
		return false
	}

	rawLabel := str[1:labelEnd]
	key := NormalizeLabel(rawLabel)
	if key == "" {
		return false
	}
	if silent {
		return true
	}

	if _, ok := s.refs[key]; !ok {
		s.refs[key] = Reference{Href: href, Title: title}
	}

	s.line = startLine + lines + 1
	s.push(Token{
		Kind:    KindDefinition,
		Span:    lineSpan(startLine, s.line),
		Content: rawLabel,
		Meta:    &DefinitionMeta{Key: key, Label: rawLabel, Href: href, Title: title},
	})
	return true
}
