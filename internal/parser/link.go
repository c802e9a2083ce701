package parser

import (
	"html"
	"regexp"
	"strings"
)

type linkResult struct {
	ok    bool
	pos   int
	lines int
	str   string
}

// parseLinkDestination reads a link destination starting at start, either
// <bracketed> or a bare run with balanced parentheses.
func parseLinkDestination(str string, start, max int) linkResult {
	pos := start
	var res linkResult

	if pos < max && str[pos] == '<' {
		pos++
		for pos < max {
			switch str[pos] {
			case '\n', '<':
				return res
			case '>':
				return linkResult{ok: true, pos: pos + 1, str: unescapeAll(str[start+1 : pos])}
			case '\\':
				if pos+1 < max {
					pos += 2
					continue
				}
			}
			pos++
		}
		return res
	}

	level := 0
	for pos < max {
		ch := str[pos]
		if ch == ' ' || ch < 0x20 || ch == 0x7f {
			break
		}
		if ch == '\\' && pos+1 < max {
			if str[pos+1] == ' ' {
				break
			}
			pos += 2
			continue
		}
		if ch == '(' {
			level++
			if level > 32 {
				return res
			}
		}
		if ch == ')' {
			if level == 0 {
				break
			}
			level--
		}
		pos++
	}

	if start == pos || level != 0 {
		return res
	}
	return linkResult{ok: true, pos: pos, str: unescapeAll(str[start:pos])}
}

// parseLinkTitle reads a "double", 'single' or (parenthesized) title.
func parseLinkTitle(str string, start, max int) linkResult {
	pos := start
	lines := 0
	var res linkResult

	if pos >= max {
		return res
	}
	marker := str[pos]
	if marker != '"' && marker != '\'' && marker != '(' {
		return res
	}
	pos++
	if marker == '(' {
		marker = ')'
	}

	for pos < max {
		ch := str[pos]
		switch {
		case ch == marker:
			return linkResult{ok: true, pos: pos + 1, lines: lines, str: unescapeAll(str[start+1 : pos])}
		case ch == '(' && marker == ')':
			return res
		case ch == '\n':
			lines++
		case ch == '\\' && pos+1 < max:
			pos++
			if str[pos] == '\n' {
				lines++
			}
		}
		pos++
	}
	return res
}

var backslashEscapeRe = regexp.MustCompile("\\\\([!\"#$%&'()*+,\\-./:;<=>?@\\[\\\\\\]^_`{|}~])")

// unescapeAll resolves backslash escapes and HTML entities.
func unescapeAll(str string) string {
	if !strings.ContainsAny(str, "\\&") {
		return str
	}
	str = backslashEscapeRe.ReplaceAllString(str, "$1")
	return html.UnescapeString(str)
}

const urlSafe = ";/?:@&=+$,-_.!~*'()#"

// normalizeLink percent-encodes characters that are not allowed in a URL,
// keeping existing escapes intact.
func normalizeLink(link string) string {
	var sb strings.Builder
	for i := 0; i < len(link); i++ {
		ch := link[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			sb.WriteByte(ch)
		case strings.IndexByte(urlSafe, ch) >= 0:
			sb.WriteByte(ch)
		case ch == '%' && i+2 < len(link) && isHex(link[i+1]) && isHex(link[i+2]):
			sb.WriteString(link[i : i+3])
			i += 2
		default:
			const hexDigits = "0123456789ABCDEF"
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[ch>>4])
			sb.WriteByte(hexDigits[ch&0x0f])
		}
	}
	return sb.String()
}

func isHex(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

var (
	badProtoRe = regexp.MustCompile(`^(vbscript|javascript|file|data):`)
	goodDataRe = regexp.MustCompile(`^data:image/(gif|png|jpeg|webp);`)
)

// validateLink rejects script and file URLs. Image data URLs are allowed.
func validateLink(link string) bool {
	str := strings.ToLower(strings.TrimSpace(link))
	if badProtoRe.MatchString(str) {
		return goodDataRe.MatchString(str)
	}
	return true
}

var whitespaceRunRe = regexp.MustCompile(`\s+`)

// NormalizeLabel folds a reference label for lookup: surrounding whitespace
// is trimmed, inner runs collapse to one space and case is folded.
func NormalizeLabel(label string) string {
	label = whitespaceRunRe.ReplaceAllString(strings.TrimSpace(label), " ")
	// Upper-casing first folds characters such as 'ẞ' that have no single
	// lower-case mapping.
	return strings.ToLower(strings.ToUpper(label))
}
