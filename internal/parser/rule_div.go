package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ruleColonFence recognizes a div fenced by three or more colons:
//
//	:::{note} Optional argument
//	:class: tip
//	Nested *Markdown* content.
//	:::
//
// The closing fence needs at least as many colons as the opening one. A div
// without a closing fence ends at the boundary of its enclosing block. Lines
// right after the opener that start with a single colon, or a "---" delimited
// YAML block, are decoded as the div's options.
func ruleColonFence(s *state, startLine, endLine int, silent bool) bool {
	pos := s.bMarks[startLine] + s.tShift[startLine]
	max := s.eMarks[startLine]

	if s.isCodeBlock(startLine) || pos+3 > max || s.src[pos] != ':' {
		return false
	}

	mem := pos
	pos = s.skipChars(pos, ':')
	length := pos - mem
	if length < 3 {
		return false
	}
	markup := s.src[mem:pos]
	info := strings.TrimSpace(s.src[pos:max])
	if silent {
		return true
	}

	next := startLine
	closed := false
	closeMarkup := ""
	for {
		next++
		if next >= endLine {
			break
		}
		pos = s.bMarks[next] + s.tShift[next]
		mem = pos
		max = s.eMarks[next]
		if pos < max && s.sCount[next] < s.blkIndent {
			break
		}
		if s.at(pos) != ':' || s.isCodeBlock(next) {
			continue
		}
		pos = s.skipChars(pos, ':')
		if pos-mem < length {
			continue
		}
		if s.skipSpaces(pos) < max {
			continue
		}
		closed = true
		closeMarkup = s.src[mem:pos]
		break
	}

	meta := &DivMeta{Closed: closed}
	meta.Name, meta.Argument = splitDirective(info)

	contentStart := startLine + 1
	if text, end, ok := s.optionBlock(contentStart, next); ok {
		meta.Options, meta.OptError = decodeMapping(text, "options must be a mapping")
		contentStart = end
	}

	spanEnd := next
	if closed {
		spanEnd++
	}
	s.push(Token{
		Kind:    KindDivOpen,
		Span:    lineSpan(startLine, spanEnd),
		Nesting: 1,
		Markup:  markup,
		Info:    info,
		Meta:    meta,
	})

	oldParent := s.parentType
	oldLineMax := s.lineMax
	s.parentType = parentDiv
	// Content must not continue lazily past the closing fence.
	s.lineMax = next
	s.p.tokenize(s, contentStart, next)
	s.parentType = oldParent
	s.lineMax = oldLineMax

	closeTok := Token{Kind: KindDivClose, Nesting: -1}
	if closed {
		closeTok.Span = lineSpan(next, next+1)
		closeTok.Markup = closeMarkup
	}
	s.push(closeTok)

	s.line = spanEnd
	return true
}

// splitDirective splits an info string like "{note} Some title" into the
// directive name and its argument. Without braces the whole string is the
// argument.
func splitDirective(info string) (name, argument string) {
	if strings.HasPrefix(info, "{") {
		if end := strings.IndexByte(info, '}'); end > 0 {
			return strings.TrimSpace(info[1:end]), strings.TrimSpace(info[end+1:])
		}
	}
	return "", info
}

// optionBlock finds the option lines of a div starting at from. It returns
// the YAML text, the first line after the block, and whether a block exists.
func (s *state) optionBlock(from, to int) (string, int, bool) {
	if from >= to || s.isCodeBlock(from) {
		return "", from, false
	}

	if strings.TrimSpace(s.lineText(from)) == "---" {
		for line := from + 1; line < to; line++ {
			if strings.TrimSpace(s.lineText(line)) == "---" {
				return s.getLines(from+1, line, s.blkIndent, true), line + 1, true
			}
		}
		return "", from, false
	}

	var lines []string
	line := from
	for ; line < to; line++ {
		if s.sCount[line]-s.blkIndent > 3 {
			break
		}
		text := s.lineText(line)
		// "::" would be a nested fence, not an option.
		if len(text) == 0 || text[0] != ':' || (len(text) > 1 && text[1] == ':') {
			break
		}
		lines = append(lines, text[1:])
	}
	if len(lines) == 0 {
		return "", from, false
	}
	return strings.Join(lines, "\n"), line, true
}

// decodeMapping decodes YAML text that must hold a mapping. Failures are
// returned as a message for the token's metadata.
func decodeMapping(text, notMapping string) (map[string]any, string) {
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return nil, err.Error()
	}
	if v == nil {
		return nil, ""
	}
	m, ok := normalizeYAML(v).(map[string]any)
	if !ok {
		return nil, notMapping
	}
	return m, ""
}

// normalizeYAML converts mappings with non-string keys into map[string]any so
// metadata always encodes as JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
