// Package parser splits MyST Markdown into a flat stream of block tokens, each
// annotated with the source lines it spans.
//
// Only block structure is recognized. Inline content (emphasis, links, roles)
// is left unparsed inside KindInline tokens.
package parser

import (
	"slices"
	"strings"
)

// MyST extension names accepted in Options.Extensions. Only ExtColonFence
// changes block structure; the rest are inline-level and accepted so that a
// project's extension list can be passed through unchanged.
const (
	ExtAmsmath        = "amsmath"
	ExtAttrsInline    = "attrs_inline"
	ExtColonFence     = "colon_fence"
	ExtDeflist        = "deflist"
	ExtDollarmath     = "dollarmath"
	ExtFieldlist      = "fieldlist"
	ExtHTMLAdmonition = "html_admonition"
	ExtHTMLImage      = "html_image"
	ExtLinkify        = "linkify"
	ExtReplacements   = "replacements"
	ExtSmartquotes    = "smartquotes"
	ExtStrikethrough  = "strikethrough"
	ExtSubstitution   = "substitution"
	ExtTasklist       = "tasklist"
)

// KnownExtensions lists every accepted extension name.
var KnownExtensions = []string{
	ExtAmsmath, ExtAttrsInline, ExtColonFence, ExtDeflist, ExtDollarmath,
	ExtFieldlist, ExtHTMLAdmonition, ExtHTMLImage, ExtLinkify, ExtReplacements,
	ExtSmartquotes, ExtStrikethrough, ExtSubstitution, ExtTasklist,
}

const defaultMaxNesting = 20

// Options configures the grammar.
type Options struct {
	Extensions []string
}

// Enabled reports whether the named extension is switched on.
func (o Options) Enabled(ext string) bool {
	return slices.Contains(o.Extensions, ext)
}

// Reference is a link reference definition as recorded in the side table.
type Reference struct {
	Href  string
	Title string
}

// Result is the output of a parse.
type Result struct {
	Tokens []Token
	// References maps normalized labels to the first definition seen.
	References map[string]Reference
}

// Parser tokenizes documents with a fixed rule set. A Parser is immutable
// after New and safe for concurrent use.
type Parser struct {
	rules      *ruler
	maxNesting int
}

// New builds a parser for the given options.
func New(opts Options) *Parser {
	r := &ruler{}
	r.push("code", ruleCode)
	r.push("fence", ruleFence, interruptsAll...)
	r.push("blockquote", ruleBlockquote, interruptsAll...)
	r.push("hr", ruleHr, interruptsAll...)
	r.push("list", ruleList, chainParagraph, chainReference, chainBlockquote)
	r.push("definition", ruleDefinition)
	r.push("html_block", ruleHTMLBlock, chainParagraph, chainReference, chainBlockquote)
	r.push("heading", ruleHeading, chainParagraph, chainReference, chainBlockquote)
	r.push("lheading", ruleLHeading)
	r.push("paragraph", ruleParagraph)

	r.before("code", "front_matter", ruleFrontMatter)
	r.before("blockquote", "myst_line_comment", ruleLineComment, interruptsAll...)
	r.before("hr", "myst_block_break", ruleBlockBreak, interruptsAll...)
	r.before("hr", "myst_target", ruleTarget, interruptsAll...)
	if opts.Enabled(ExtColonFence) {
		r.before("fence", "colon_fence", ruleColonFence, interruptsAll...)
	}
	r.compile()

	return &Parser{rules: r, maxNesting: defaultMaxNesting}
}

// RuleNames returns the active rule names in the order they are tried.
func (p *Parser) RuleNames() []string {
	return p.rules.names()
}

// Parse tokenizes text. It never fails: input no rule recognizes becomes a
// paragraph.
func (p *Parser) Parse(text string) *Result {
	refs := make(map[string]Reference)
	s := newState(normalize(text), p, refs)
	p.tokenize(s, 0, s.lineMax)
	return &Result{Tokens: s.tokens, References: refs}
}

// ParseBlocks tokenizes text with a parser built from opts.
func ParseBlocks(text string, opts Options) []Token {
	return New(opts).Parse(text).Tokens
}

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "�")

func normalize(text string) string {
	return newlineReplacer.Replace(text)
}

// tokenize runs the rule chain over lines [startLine, endLine).
func (p *Parser) tokenize(s *state, startLine, endLine int) {
	rules := p.rules.chain("")
	line := startLine
	hasEmptyLines := false

	for line < endLine {
		line = s.skipEmptyLines(line)
		s.line = line
		if line >= endLine {
			break
		}
		// Dedented content ends the enclosing container.
		if s.sCount[line] < s.blkIndent {
			break
		}
		if s.level >= p.maxNesting {
			s.line = endLine
			break
		}

		prevLine := s.line
		matched := false
		for _, r := range rules {
			if r(s, line, endLine, false) {
				matched = true
				break
			}
		}
		if !matched || s.line <= prevLine {
			s.line = prevLine + 1
		}

		s.tight = !hasEmptyLines
		if s.isEmpty(s.line - 1) {
			hasEmptyLines = true
		}

		line = s.line
		if line < endLine && s.isEmpty(line) {
			hasEmptyLines = true
			line++
			s.line = line
		}
	}
}
