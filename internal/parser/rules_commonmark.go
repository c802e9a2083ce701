package parser

import (
	"regexp"
	"strconv"
	"strings"
)

func lineSpan(start, end int) *Span {
	return &Span{Start: start, End: end}
}

func ruleCode(s *state, startLine, endLine int, _ bool) bool {
	if !s.isCodeBlock(startLine) {
		return false
	}

	next := startLine + 1
	last := next
	for next < endLine {
		if s.isEmpty(next) {
			next++
			continue
		}
		if s.isCodeBlock(next) {
			next++
			last = next
			continue
		}
		break
	}

	s.line = last
	s.push(Token{
		Kind:    KindCodeBlock,
		Span:    lineSpan(startLine, last),
		Content: s.getLines(startLine, last, 4+s.blkIndent, false),
	})
	return true
}

func ruleFence(s *state, startLine, endLine int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]
	max := s.eMarks[startLine]

	if s.isCodeBlock(startLine) || pos+3 > max {
		return false
	}
	marker := s.src[pos]
	if marker != '~' && marker != '`' {
		return false
	}

	mem := pos
	pos = s.skipChars(pos, marker)
	length := pos - mem
	if length < 3 {
		return false
	}
	markup := s.src[mem:pos]
	params := s.src[pos:max]
	if marker == '`' && strings.IndexByte(params, marker) >= 0 {
		return false
	}
	if silent {
		return true
	}

	next := startLine
	closed := false
	for {
		next++
		if next >= endLine {
			break
		}
		pos = s.bMarks[next] + s.tShift[next]
		mem = pos
		max = s.eMarks[next]
		if pos < max && s.sCount[next] < s.blkIndent {
			// Non-empty line with negative indent ends the fence.
			break
		}
		if s.at(pos) != marker || s.isCodeBlock(next) {
			continue
		}
		pos = s.skipChars(pos, marker)
		if pos-mem < length {
			continue
		}
		if s.skipSpaces(pos) < max {
			continue
		}
		closed = true
		break
	}

	s.line = next
	if closed {
		s.line++
	}
	s.push(Token{
		Kind:    KindFence,
		Span:    lineSpan(startLine, s.line),
		Markup:  markup,
		Info:    strings.TrimSpace(params),
		Content: s.getLines(startLine+1, next, s.sCount[startLine], true),
	})
	return true
}

func ruleBlockquote(s *state, startLine, endLine int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]

	if s.isCodeBlock(startLine) || s.at(pos) != '>' {
		return false
	}
	if silent {
		return true
	}

	oldLineMax := s.lineMax
	oldParent := s.parentType
	s.parentType = parentBlockquote

	var oldBMarks, oldBSCount, oldSCount, oldTShift []int
	save := func(line int) {
		oldBMarks = append(oldBMarks, s.bMarks[line])
		oldBSCount = append(oldBSCount, s.bsCount[line])
		oldSCount = append(oldSCount, s.sCount[line])
		oldTShift = append(oldTShift, s.tShift[line])
	}

	lastLineEmpty := false
	next := startLine
	for ; next < endLine; next++ {
		outdented := s.sCount[next] < s.blkIndent
		pos = s.bMarks[next] + s.tShift[next]
		max := s.eMarks[next]
		if pos >= max {
			break
		}

		if s.src[pos] == '>' && !outdented {
			pos++
			initial := s.sCount[next] + 1
			spaceAfterMarker, adjustTab := false, false
			switch s.at(pos) {
			case ' ':
				pos++
				initial++
				spaceAfterMarker = true
			case '\t':
				spaceAfterMarker = true
				if (s.bsCount[next]+initial)%4 == 3 {
					pos++
					initial++
				} else {
					adjustTab = true
				}
			}

			offset := initial
			save(next)
			s.bMarks[next] = pos
			for pos < max {
				ch := s.src[pos]
				if !isSpace(ch) {
					break
				}
				if ch == '\t' {
					adj := 0
					if adjustTab {
						adj = 1
					}
					offset += 4 - (offset+s.bsCount[next]+adj)%4
				} else {
					offset++
				}
				pos++
			}
			lastLineEmpty = pos >= max

			s.bsCount[next] = s.sCount[next] + 1
			if spaceAfterMarker {
				s.bsCount[next]++
			}
			s.sCount[next] = offset - initial
			s.tShift[next] = pos - s.bMarks[next]
			continue
		}

		if lastLineEmpty {
			break
		}

		if s.terminates(chainBlockquote, next, endLine) {
			s.lineMax = next
			if s.blkIndent != 0 {
				save(next)
				s.sCount[next] -= s.blkIndent
			}
			break
		}

		save(next)
		// Lazy continuation line.
		s.sCount[next] = -1
	}

	oldIndent := s.blkIndent
	s.blkIndent = 0

	open := s.push(Token{Kind: KindBlockquoteOpen, Span: lineSpan(startLine, startLine), Nesting: 1, Markup: ">"})
	s.p.tokenize(s, startLine, next)
	s.push(Token{Kind: KindBlockquoteClose, Nesting: -1, Markup: ">"})
	s.closeSpan(open, s.line)

	s.lineMax = oldLineMax
	s.parentType = oldParent
	for i := range oldTShift {
		s.bMarks[startLine+i] = oldBMarks[i]
		s.tShift[startLine+i] = oldTShift[i]
		s.sCount[startLine+i] = oldSCount[i]
		s.bsCount[startLine+i] = oldBSCount[i]
	}
	s.blkIndent = oldIndent
	return true
}

func ruleHr(s *state, startLine, _ int, silent bool) bool {
	if s.isCodeBlock(startLine) {
		return false
	}
	pos := s.bMarks[startLine] + s.tShift[startLine]
	max := s.eMarks[startLine]

	marker := s.at(pos)
	if marker != '*' && marker != '-' && marker != '_' {
		return false
	}
	pos++

	count := 1
	for pos < max {
		ch := s.src[pos]
		pos++
		if ch != marker && !isSpace(ch) {
			return false
		}
		if ch == marker {
			count++
		}
	}
	if count < 3 {
		return false
	}
	if silent {
		return true
	}

	s.line = startLine + 1
	s.push(Token{Kind: KindHr, Span: lineSpan(startLine, s.line), Markup: strings.Repeat(string(marker), count)})
	return true
}

// skipBulletMarker returns the position after a bullet list marker, or -1.
func (s *state) skipBulletMarker(line int) int {
	pos := s.bMarks[line] + s.tShift[line]
	max := s.eMarks[line]

	marker := s.at(pos)
	if marker != '*' && marker != '-' && marker != '+' {
		return -1
	}
	pos++
	if pos < max && !isSpace(s.src[pos]) {
		return -1
	}
	return pos
}

// skipOrderedMarker returns the position after an ordered list marker, or -1.
func (s *state) skipOrderedMarker(line int) int {
	start := s.bMarks[line] + s.tShift[line]
	max := s.eMarks[line]
	pos := start

	if pos+1 >= max {
		return -1
	}
	if ch := s.src[pos]; ch < '0' || ch > '9' {
		return -1
	}
	pos++
	for {
		if pos >= max {
			return -1
		}
		ch := s.src[pos]
		pos++
		if ch >= '0' && ch <= '9' {
			// List markers are limited to 9 digits.
			if pos-start >= 10 {
				return -1
			}
			continue
		}
		if ch == ')' || ch == '.' {
			break
		}
		return -1
	}

	if pos < max && !isSpace(s.src[pos]) {
		return -1
	}
	return pos
}

// markTightParagraphs hides the paragraphs that are direct children of the
// list items of a tight list.
func (s *state) markTightParagraphs(idx int) {
	level := s.level + 2
	for i := idx + 2; i < len(s.tokens)-2; i++ {
		if s.tokens[i].Level == level && s.tokens[i].Kind == KindParagraphOpen {
			s.tokens[i+2].Hidden = true
			s.tokens[i].Hidden = true
			i += 2
		}
	}
}

func ruleList(s *state, startLine, endLine int, silent bool) bool {
	next := startLine
	tight := true

	if s.isCodeBlock(next) {
		return false
	}
	// A list item indented past the previous item's content is code in it.
	if s.listIndent >= 0 && s.sCount[next]-s.listIndent >= 4 && s.sCount[next] < s.blkIndent {
		return false
	}

	terminatingParagraph := silent && s.parentType == parentParagraph && s.sCount[next] >= s.blkIndent

	var (
		ordered     bool
		markerValue int
		start       int
	)
	afterMarker := s.skipOrderedMarker(next)
	if afterMarker >= 0 {
		ordered = true
		start = s.bMarks[next] + s.tShift[next]
		markerValue, _ = strconv.Atoi(s.src[start : afterMarker-1])
		// Only lists starting at 1 may interrupt a paragraph.
		if terminatingParagraph && markerValue != 1 {
			return false
		}
	} else if afterMarker = s.skipBulletMarker(next); afterMarker < 0 {
		return false
	}

	// An empty list item cannot interrupt a paragraph.
	if terminatingParagraph && s.skipSpaces(afterMarker) >= s.eMarks[next] {
		return false
	}
	if silent {
		return true
	}

	markerChar := s.src[afterMarker-1]
	markup := string(markerChar)
	listIdx := len(s.tokens)

	open := Token{Kind: KindBulletListOpen, Span: lineSpan(next, next), Nesting: 1, Markup: markup}
	if ordered {
		open.Kind = KindOrderedListOpen
		open.Meta = &ListMeta{Start: markerValue}
	}
	s.push(open)

	prevEmptyEnd := false
	oldParent := s.parentType
	s.parentType = parentList

	for next < endLine {
		pos := afterMarker
		max := s.eMarks[next]

		initial := s.sCount[next] + afterMarker - (s.bMarks[next] + s.tShift[next])
		offset := initial
	indent:
		for pos < max {
			switch s.src[pos] {
			case '\t':
				offset += 4 - (offset+s.bsCount[next])%4
			case ' ':
				offset++
			default:
				break indent
			}
			pos++
		}

		contentStart := pos
		indentAfterMarker := offset - initial
		if contentStart >= max || indentAfterMarker > 4 {
			// Blank item or indented code inside the item.
			indentAfterMarker = 1
		}
		itemIndent := initial + indentAfterMarker

		item := Token{Kind: KindListItemOpen, Span: lineSpan(next, next), Nesting: 1, Markup: markup}
		if ordered {
			item.Info = s.src[start : afterMarker-1]
		}
		itemIdx := s.push(item)

		oldTight := s.tight
		oldTShift := s.tShift[next]
		oldSCount := s.sCount[next]
		oldListIndent := s.listIndent
		s.listIndent = s.blkIndent
		s.blkIndent = itemIndent
		s.tight = true
		s.tShift[next] = contentStart - s.bMarks[next]
		s.sCount[next] = offset

		if contentStart >= max && s.isEmpty(next+1) {
			// An item can begin with at most one blank line.
			s.line = min(s.line+2, endLine)
		} else {
			s.p.tokenize(s, next, endLine)
		}

		if !s.tight || prevEmptyEnd {
			tight = false
		}
		prevEmptyEnd = s.line-next > 1 && s.isEmpty(s.line-1)

		s.blkIndent = s.listIndent
		s.listIndent = oldListIndent
		s.tShift[next] = oldTShift
		s.sCount[next] = oldSCount
		s.tight = oldTight

		s.push(Token{Kind: KindListItemClose, Nesting: -1, Markup: markup})

		next = s.line
		s.closeSpan(itemIdx, next)

		if next >= endLine || s.sCount[next] < s.blkIndent || s.isCodeBlock(startLine) {
			break
		}
		if s.terminates(chainList, next, endLine) {
			break
		}

		if ordered {
			if afterMarker = s.skipOrderedMarker(next); afterMarker < 0 {
				break
			}
			start = s.bMarks[next] + s.tShift[next]
		} else if afterMarker = s.skipBulletMarker(next); afterMarker < 0 {
			break
		}
		if s.src[afterMarker-1] != markerChar {
			break
		}
	}

	closeKind := KindBulletListClose
	if ordered {
		closeKind = KindOrderedListClose
	}
	s.push(Token{Kind: closeKind, Nesting: -1, Markup: markup})
	s.closeSpan(listIdx, next)

	s.line = next
	s.parentType = oldParent
	if tight {
		s.markTightParagraphs(listIdx)
	}
	return true
}

func ruleHeading(s *state, startLine, _ int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]
	max := s.eMarks[startLine]

	if s.isCodeBlock(startLine) || pos >= max || s.src[pos] != '#' {
		return false
	}

	level := 1
	pos++
	for pos < max && s.src[pos] == '#' && level <= 6 {
		level++
		pos++
	}
	if level > 6 || (pos < max && !isSpace(s.src[pos])) {
		return false
	}
	if silent {
		return true
	}

	// Drop the optional closing sequence.
	max = s.skipSpacesBack(max, pos)
	if tmp := s.skipCharsBack(max, '#', pos); tmp > pos && isSpace(s.src[tmp-1]) {
		max = tmp
	}

	s.line = startLine + 1
	markup := strings.Repeat("#", level)
	sp := lineSpan(startLine, s.line)
	s.push(Token{Kind: KindHeadingOpen, Span: sp, Nesting: 1, Markup: markup, Info: "h" + strconv.Itoa(level)})
	s.push(Token{Kind: KindInline, Span: lineSpan(startLine, s.line), Content: strings.TrimSpace(s.src[pos:max])})
	s.push(Token{Kind: KindHeadingClose, Nesting: -1, Markup: markup})
	return true
}

func ruleLHeading(s *state, startLine, endLine int, _ bool) bool {
	if s.isCodeBlock(startLine) {
		return false
	}

	oldParent := s.parentType
	s.parentType = parentParagraph
	defer func() { s.parentType = oldParent }()

	level := 0
	var marker byte
	next := startLine + 1
	for ; next < endLine && !s.isEmpty(next); next++ {
		// Continuation lines indented as code are part of the paragraph.
		if s.sCount[next]-s.blkIndent > 3 {
			continue
		}

		if s.sCount[next] >= s.blkIndent {
			pos := s.bMarks[next] + s.tShift[next]
			max := s.eMarks[next]
			if pos < max {
				marker = s.src[pos]
				if marker == '-' || marker == '=' {
					pos = s.skipSpaces(s.skipChars(pos, marker))
					if pos >= max {
						level = 2
						if marker == '=' {
							level = 1
						}
						break
					}
				}
			}
		}

		// Lazy continuation inside a blockquote.
		if s.sCount[next] < 0 {
			continue
		}
		if s.terminates(chainParagraph, next, endLine) {
			break
		}
	}
	if level == 0 {
		return false
	}

	content := strings.TrimSpace(s.getLines(startLine, next, s.blkIndent, false))
	s.line = next + 1

	markup := string(marker)
	s.push(Token{Kind: KindHeadingOpen, Span: lineSpan(startLine, s.line), Nesting: 1, Markup: markup, Info: "h" + strconv.Itoa(level)})
	s.push(Token{Kind: KindInline, Span: lineSpan(startLine, s.line-1), Content: content})
	s.push(Token{Kind: KindHeadingClose, Nesting: -1, Markup: markup})
	return true
}

var htmlBlockNames = []string{
	"address", "article", "aside", "base", "basefont", "blockquote", "body",
	"caption", "center", "col", "colgroup", "dd", "details", "dialog", "dir",
	"div", "dl", "dt", "fieldset", "figcaption", "figure", "footer", "form",
	"frame", "frameset", "h1", "h2", "h3", "h4", "h5", "h6", "head", "header",
	"hr", "html", "iframe", "legend", "li", "link", "main", "menu", "menuitem",
	"nav", "noframes", "ol", "optgroup", "option", "p", "param", "search",
	"section", "summary", "table", "tbody", "td", "tfoot", "th", "thead",
	"title", "tr", "track", "ul",
}

const (
	htmlAttrName   = `[a-zA-Z_:][a-zA-Z0-9:._-]*`
	htmlAttrValue  = `(?:[^"'=<>` + "`" + `\x00-\x20]+|'[^']*'|"[^"]*")`
	htmlAttribute  = `(?:\s+` + htmlAttrName + `(?:\s*=\s*` + htmlAttrValue + `)?)`
	htmlOpenTag    = `<[A-Za-z][A-Za-z0-9\-]*` + htmlAttribute + `*\s*/?>`
	htmlCloseTag   = `</[A-Za-z][A-Za-z0-9\-]*\s*>`
	htmlBlankAfter = `^$`
)

// htmlSequence is one of the CommonMark HTML block start conditions. Blocks
// started by a sequence that cannot interrupt a paragraph report false in
// silent mode.
type htmlSequence struct {
	open      *regexp.Regexp
	close     *regexp.Regexp
	interrupt bool
}

var htmlSequences = []htmlSequence{
	{regexp.MustCompile(`(?i)^<(script|pre|style|textarea)(\s|>|$)`), regexp.MustCompile(`(?i)</(script|pre|style|textarea)>`), true},
	{regexp.MustCompile(`^<!--`), regexp.MustCompile(`-->`), true},
	{regexp.MustCompile(`^<\?`), regexp.MustCompile(`\?>`), true},
	{regexp.MustCompile(`^<![A-Z]`), regexp.MustCompile(`>`), true},
	{regexp.MustCompile(`^<!\[CDATA\[`), regexp.MustCompile(`\]\]>`), true},
	{regexp.MustCompile(`(?i)^</?(` + strings.Join(htmlBlockNames, "|") + `)(\s|/?>|$)`), regexp.MustCompile(htmlBlankAfter), true},
	{regexp.MustCompile(`^(?:` + htmlOpenTag + `|` + htmlCloseTag + `)\s*$`), regexp.MustCompile(htmlBlankAfter), false},
}

func ruleHTMLBlock(s *state, startLine, endLine int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]
	if s.isCodeBlock(startLine) || s.at(pos) != '<' {
		return false
	}

	text := s.src[pos:s.eMarks[startLine]]
	var seq *htmlSequence
	for i := range htmlSequences {
		if htmlSequences[i].open.MatchString(text) {
			seq = &htmlSequences[i]
			break
		}
	}
	if seq == nil {
		return false
	}
	if silent {
		return seq.interrupt
	}

	next := startLine + 1
	// The block may close on its own first line.
	if !seq.close.MatchString(text) {
		for ; next < endLine; next++ {
			if s.sCount[next] < s.blkIndent {
				break
			}
			text = s.lineText(next)
			if seq.close.MatchString(text) {
				if len(text) != 0 {
					next++
				}
				break
			}
		}
	}

	s.line = next
	s.push(Token{
		Kind:    KindHTMLBlock,
		Span:    lineSpan(startLine, next),
		Content: s.getLines(startLine, next, s.blkIndent, true),
	})
	return true
}

func ruleParagraph(s *state, startLine, _ int, _ bool) bool {
	// Paragraphs run to the state's line limit, not the caller's endLine, so
	// containers bound lazy continuation by lowering lineMax.
	endLine := s.lineMax
	oldParent := s.parentType
	s.parentType = parentParagraph

	next := startLine + 1
	for ; next < endLine && !s.isEmpty(next); next++ {
		if s.sCount[next]-s.blkIndent > 3 || s.sCount[next] < 0 {
			continue
		}
		if s.terminates(chainParagraph, next, endLine) {
			break
		}
	}

	content := strings.TrimSpace(s.getLines(startLine, next, s.blkIndent, false))
	s.line = next

	s.push(Token{Kind: KindParagraphOpen, Span: lineSpan(startLine, next), Nesting: 1})
	s.push(Token{Kind: KindInline, Span: lineSpan(startLine, next), Content: content})
	s.push(Token{Kind: KindParagraphClose, Nesting: -1})

	s.parentType = oldParent
	return true
}
