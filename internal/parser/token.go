package parser

import "fmt"

// Kind identifies the construct a Token represents.
type Kind uint8

// Token kinds. Open/close pairs bracket the tokens of nested content.
const (
	KindInvalid Kind = iota
	KindParagraphOpen
	KindParagraphClose
	KindInline
	KindHeadingOpen
	KindHeadingClose
	KindFence
	KindCodeBlock
	KindHr
	KindBlockquoteOpen
	KindBlockquoteClose
	KindBulletListOpen
	KindBulletListClose
	KindOrderedListOpen
	KindOrderedListClose
	KindListItemOpen
	KindListItemClose
	KindHTMLBlock
	KindFrontMatter
	KindDefinition
	KindTarget
	KindLineComment
	KindBlockBreak
	KindDivOpen
	KindDivClose

	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:          "invalid",
	KindParagraphOpen:    "paragraph_open",
	KindParagraphClose:   "paragraph_close",
	KindInline:           "inline",
	KindHeadingOpen:      "heading_open",
	KindHeadingClose:     "heading_close",
	KindFence:            "fence",
	KindCodeBlock:        "code_block",
	KindHr:               "hr",
	KindBlockquoteOpen:   "blockquote_open",
	KindBlockquoteClose:  "blockquote_close",
	KindBulletListOpen:   "bullet_list_open",
	KindBulletListClose:  "bullet_list_close",
	KindOrderedListOpen:  "ordered_list_open",
	KindOrderedListClose: "ordered_list_close",
	KindListItemOpen:     "list_item_open",
	KindListItemClose:    "list_item_close",
	KindHTMLBlock:        "html_block",
	KindFrontMatter:      "front_matter",
	KindDefinition:       "definition",
	KindTarget:           "myst_target",
	KindLineComment:      "myst_line_comment",
	KindBlockBreak:       "myst_block_break",
	KindDivOpen:          "div_open",
	KindDivClose:         "div_close",
}

// String returns the token kind name, e.g. "myst_target".
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind resolves a kind name. KindInvalid is never returned as valid.
func ParseKind(name string) (Kind, bool) {
	for k := KindInvalid + 1; k < kindCount; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return KindInvalid, false
}

// KindNames lists every valid kind name in declaration order.
func KindNames() []string {
	out := make([]string, 0, kindCount-1)
	for k := KindInvalid + 1; k < kindCount; k++ {
		out = append(out, kindNames[k])
	}
	return out
}

// Span is a half-open, 0-indexed line range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return line >= s.Start && line < s.End
}

// Token is one unit of block structure.
//
// Span is nil for purely structural tokens (most close tokens). Nesting is 1
// for open tokens, -1 for close tokens and 0 for self-contained ones. Info
// holds a fence's info string, a heading's tag ("h1".."h6") or an ordered
// list item's number.
type Token struct {
	Kind    Kind   `json:"kind"`
	Span    *Span  `json:"span"`
	Nesting int    `json:"nesting"`
	Level   int    `json:"level"`
	Markup  string `json:"markup,omitempty"`
	Info    string `json:"info,omitempty"`
	Content string `json:"content,omitempty"`
	Hidden  bool   `json:"hidden,omitempty"`
	Meta    Meta   `json:"meta,omitempty"`
}

// Meta is the kind-specific payload of a token.
type Meta interface {
	isMeta()
}

// DivMeta describes a colon-fenced div.
type DivMeta struct {
	// Name is the directive name from an info string like "{note} Title".
	Name     string         `json:"name,omitempty"`
	Argument string         `json:"argument,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
	// OptError is set when the option block did not decode to a mapping.
	OptError string `json:"optError,omitempty"`
	// Closed is false when no closing fence was found and the div ended at
	// the boundary of its enclosing block.
	Closed bool `json:"closed"`
}

// DefinitionMeta describes a link reference definition.
type DefinitionMeta struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Href  string `json:"href"`
	Title string `json:"title"`
}

// FrontMatterMeta holds the decoded YAML front matter.
type FrontMatterMeta struct {
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// ListMeta carries the start number of an ordered list.
type ListMeta struct {
	Start int `json:"start"`
}

func (*DivMeta) isMeta()         {}
func (*DefinitionMeta) isMeta()  {}
func (*FrontMatterMeta) isMeta() {}
func (*ListMeta) isMeta()        {}
