package parser

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

var withColonFence = Options{Extensions: []string{ExtColonFence}}

// dump renders tokens one per line, indented by level.
func dump(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(strings.Repeat("  ", t.Level))
		sb.WriteString(t.Kind.String())
		if t.Span != nil {
			fmt.Fprintf(&sb, " [%d,%d)", t.Span.Start, t.Span.End)
		}
		if t.Hidden {
			sb.WriteString(" hidden")
		}
		if t.Content != "" {
			fmt.Fprintf(&sb, " %q", t.Content)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func assertTokens(t *testing.T, got []Token, want string) {
	t.Helper()
	g := dump(got)
	if g == want {
		return
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(g),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	t.Errorf("token stream mismatch:\n%s", diff)
}

func TestParseBlocks_Golden(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
		want  string
	}{
		{
			name:  "div with option line",
			input: ":::{note}\n:title: hi\n:::\nfoo\n",
			opts:  withColonFence,
			want: `div_open [0,3)
div_close [2,3)
paragraph_open [3,4)
  inline [3,4) "foo"
paragraph_close
`,
		},
		{
			name:  "div option without leading colon is content",
			input: ":::{note}\ntitle: hi\n:::\nfoo\n",
			opts:  withColonFence,
			want: `div_open [0,3)
  paragraph_open [1,2)
    inline [1,2) "title: hi"
  paragraph_close
div_close [2,3)
paragraph_open [3,4)
  inline [3,4) "foo"
paragraph_close
`,
		},
		{
			name:  "colon fence disabled",
			input: ":::{note}\n:title: hi\n:::\nfoo\n",
			want: `paragraph_open [0,4)
  inline [0,4) ":::{note}\n:title: hi\n:::\nfoo"
paragraph_close
`,
		},
		{
			name:  "target before heading",
			input: "(sec-intro)=\n# Intro\n",
			want: `myst_target [0,1) "sec-intro"
heading_open [1,2)
  inline [1,2) "Intro"
heading_close
`,
		},
		{
			name:  "target with trailing whitespace",
			input: "(a.b:c)=  \n",
			want:  "myst_target [0,1) \"a.b:c\"\n",
		},
		{
			name:  "target with invalid character",
			input: "(a b)=\n",
			want: `paragraph_open [0,1)
  inline [0,1) "(a b)="
paragraph_close
`,
		},
		{
			name:  "line comments join",
			input: "% one\n%two  \ntext\n",
			want: `myst_line_comment [0,2) " one\ntwo"
paragraph_open [2,3)
  inline [2,3) "text"
paragraph_close
`,
		},
		{
			name:  "comment interrupts paragraph",
			input: "text\n% note\n",
			want: `paragraph_open [0,1)
  inline [0,1) "text"
paragraph_close
myst_line_comment [1,2) " note"
`,
		},
		{
			name:  "block break keeps trailing text",
			input: "+++ some data\n",
			want:  "myst_block_break [0,1) \"some data\"\n",
		},
		{
			name:  "spaced block break",
			input: "+ + +\n",
			want:  "myst_block_break [0,1)\n",
		},
		{
			name:  "two pluses are text",
			input: "++ x\n",
			want: `paragraph_open [0,1)
  inline [0,1) "++ x"
paragraph_close
`,
		},
		{
			name:  "indented comment is code",
			input: "    % not a comment\n",
			want:  "code_block [0,1) \"% not a comment\"\n",
		},
		{
			name:  "nested div with shorter fence does not close outer",
			input: "::::{a}\n:::\ntext\n::::\nafter\n",
			opts:  withColonFence,
			want: `div_open [0,4)
  div_open [1,3)
    paragraph_open [2,3)
      inline [2,3) "text"
    paragraph_close
  div_close
div_close [3,4)
paragraph_open [4,5)
  inline [4,5) "after"
paragraph_close
`,
		},
		{
			name:  "unclosed div ends at document end",
			input: ":::\nfoo\n",
			opts:  withColonFence,
			want: `div_open [0,2)
  paragraph_open [1,2)
    inline [1,2) "foo"
  paragraph_close
div_close
`,
		},
		{
			name:  "div inside blockquote",
			input: "> :::{note}\n> inner\n> :::\n",
			opts:  withColonFence,
			want: `blockquote_open [0,3)
  div_open [0,3)
    paragraph_open [1,2)
      inline [1,2) "inner"
    paragraph_close
  div_close [2,3)
blockquote_close
`,
		},
		{
			name:  "definition",
			input: "[ref]: https://example.com \"Example\"\n",
			want:  "definition [0,1) \"ref\"\n",
		},
		{
			name:  "definition title on next line with trailing garbage",
			input: "[a]: /url\n\"title\" junk\n",
			want: `definition [0,1) "a"
paragraph_open [1,2)
  inline [1,2) "\"title\" junk"
paragraph_close
`,
		},
		{
			name:  "garbage after destination",
			input: "[a]: /url junk\n",
			want: `paragraph_open [0,1)
  inline [0,1) "[a]: /url junk"
paragraph_close
`,
		},
		{
			name:  "inline link is not a definition",
			input: "[link](url)\n",
			want: `paragraph_open [0,1)
  inline [0,1) "[link](url)"
paragraph_close
`,
		},
		{
			name:  "tight list",
			input: "- a\n- b\n",
			want: `bullet_list_open [0,2)
  list_item_open [0,1)
    paragraph_open [0,1) hidden
      inline [0,1) "a"
    paragraph_close hidden
  list_item_close
  list_item_open [1,2)
    paragraph_open [1,2) hidden
      inline [1,2) "b"
    paragraph_close hidden
  list_item_close
bullet_list_close
`,
		},
		{
			name:  "loose ordered list",
			input: "1. a\n\n2. b\n",
			want: `ordered_list_open [0,3)
  list_item_open [0,2)
    paragraph_open [0,1)
      inline [0,1) "a"
    paragraph_close
  list_item_close
  list_item_open [2,3)
    paragraph_open [2,3)
      inline [2,3) "b"
    paragraph_close
  list_item_close
ordered_list_close
`,
		},
		{
			name:  "blockquote",
			input: "> quote\n> more\n\nafter\n",
			want: `blockquote_open [0,2)
  paragraph_open [0,2)
    inline [0,2) "quote\nmore"
  paragraph_close
blockquote_close
paragraph_open [3,4)
  inline [3,4) "after"
paragraph_close
`,
		},
		{
			name:  "fence",
			input: "```python\nprint(1)\n```\n",
			want:  "fence [0,3) \"print(1)\\n\"\n",
		},
		{
			name:  "setext heading",
			input: "Title\n=====\n",
			want: `heading_open [0,2)
  inline [0,1) "Title"
heading_close
`,
		},
		{
			name:  "thematic break",
			input: "***\n",
			want:  "hr [0,1)\n",
		},
		{
			name:  "html block",
			input: "<div>\nhello\n</div>\n\npara\n",
			want: `html_block [0,3) "<div>\nhello\n</div>\n"
paragraph_open [4,5)
  inline [4,5) "para"
paragraph_close
`,
		},
		{
			name:  "front matter",
			input: "---\ntitle: x\n---\n# H\n",
			want: `front_matter [0,3) hidden "title: x\n"
heading_open [3,4)
  inline [3,4) "H"
heading_close
`,
		},
		{
			name:  "unterminated front matter is a rule",
			input: "---\ntext\n",
			want: `hr [0,1)
paragraph_open [1,2)
  inline [1,2) "text"
paragraph_close
`,
		},
		{
			name:  "crlf line endings",
			input: "a\r\nb\r\n",
			want: `paragraph_open [0,2)
  inline [0,2) "a\nb"
paragraph_close
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertTokens(t, ParseBlocks(tt.input, tt.opts), tt.want)
		})
	}
}

func TestParse_DivMeta(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantArg  string
		wantOpts map[string]any
		wantErr  string
		closed   bool
	}{
		{
			name:     "option lines",
			input:    ":::{note}\n:title: hi\n:::\nfoo\n",
			wantName: "note",
			wantOpts: map[string]any{"title": "hi"},
			closed:   true,
		},
		{
			name:     "bare key line is not an option",
			input:    ":::{note}\ntitle: hi\n:::\nfoo\n",
			wantName: "note",
			closed:   true,
		},
		{
			name:     "yaml block",
			input:    ":::{figure} img.png\n---\nwidth: 10\n---\ncaption\n:::\n",
			wantName: "figure",
			wantArg:  "img.png",
			wantOpts: map[string]any{"width": 10},
			closed:   true,
		},
		{
			name:    "not a mapping",
			input:   ":::\n:just text\n:::\n",
			wantErr: "options must be a mapping",
			closed:  true,
		},
		{
			name:    "no braces",
			input:   "::: plain words\ntext\n",
			wantArg: "plain words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := ParseBlocks(tt.input, withColonFence)
			if len(toks) == 0 || toks[0].Kind != KindDivOpen {
				t.Fatalf("first token = %v, want div_open", toks)
			}
			meta, ok := toks[0].Meta.(*DivMeta)
			if !ok {
				t.Fatalf("meta = %T, want *DivMeta", toks[0].Meta)
			}
			if meta.Name != tt.wantName || meta.Argument != tt.wantArg {
				t.Errorf("name, argument = %q, %q; want %q, %q", meta.Name, meta.Argument, tt.wantName, tt.wantArg)
			}
			if !reflect.DeepEqual(meta.Options, tt.wantOpts) {
				t.Errorf("options = %#v, want %#v", meta.Options, tt.wantOpts)
			}
			if meta.OptError != tt.wantErr {
				t.Errorf("optError = %q, want %q", meta.OptError, tt.wantErr)
			}
			if meta.Closed != tt.closed {
				t.Errorf("closed = %v, want %v", meta.Closed, tt.closed)
			}
		})
	}
}

func TestParse_MalformedOptionsContinue(t *testing.T) {
	toks := ParseBlocks(":::{note}\n:title: [unclosed\nbody\n:::\n", withColonFence)
	meta := toks[0].Meta.(*DivMeta)
	if meta.OptError == "" {
		t.Fatal("expected an option error")
	}
	if meta.Options != nil {
		t.Errorf("options = %v, want nil", meta.Options)
	}
	var inline []string
	for _, tok := range toks {
		if tok.Kind == KindInline {
			inline = append(inline, tok.Content)
		}
	}
	if !slices.Equal(inline, []string{"body"}) {
		t.Errorf("inline content = %q, want [body]", inline)
	}
}

func TestParse_DefinitionMetaAndReferences(t *testing.T) {
	r := New(Options{}).Parse("[Ref]: https://example.com \"Example\"\n[ref]: /second\n")

	var metas []*DefinitionMeta
	for _, tok := range r.Tokens {
		if m, ok := tok.Meta.(*DefinitionMeta); ok {
			metas = append(metas, m)
		}
	}
	if len(metas) != 2 {
		t.Fatalf("definition tokens = %d, want 2", len(metas))
	}
	want := DefinitionMeta{Key: "ref", Label: "Ref", Href: "https://example.com", Title: "Example"}
	if *metas[0] != want {
		t.Errorf("meta = %+v, want %+v", *metas[0], want)
	}
	if metas[1].Href != "/second" || metas[1].Title != "" {
		t.Errorf("second meta = %+v", *metas[1])
	}

	ref, ok := r.References["ref"]
	if !ok {
		t.Fatal("reference not recorded")
	}
	if ref.Href != "https://example.com" {
		t.Errorf("first definition should win, got href %q", ref.Href)
	}
}

func TestParse_DefinitionRejectsUnsafeLinks(t *testing.T) {
	toks := ParseBlocks("[x]: javascript:alert(1)\n", Options{})
	if toks[0].Kind == KindDefinition {
		t.Errorf("javascript: destination accepted")
	}
	toks = ParseBlocks("[x]: data:image/png;base64,AAAA\n", Options{})
	if toks[0].Kind != KindDefinition {
		t.Errorf("image data destination rejected")
	}
}

func TestParse_FrontMatterData(t *testing.T) {
	toks := ParseBlocks("---\ntitle: x\ntags: [a, b]\n---\n", Options{})
	meta, ok := toks[0].Meta.(*FrontMatterMeta)
	if !ok {
		t.Fatalf("meta = %T", toks[0].Meta)
	}
	if meta.Error != "" {
		t.Fatalf("error = %q", meta.Error)
	}
	if meta.Data["title"] != "x" {
		t.Errorf("title = %v", meta.Data["title"])
	}

	toks = ParseBlocks("---\n- a\n---\n", Options{})
	if meta := toks[0].Meta.(*FrontMatterMeta); meta.Error == "" {
		t.Error("expected error for non-mapping front matter")
	}
}

var closeOf = map[Kind]Kind{
	KindParagraphOpen:   KindParagraphClose,
	KindHeadingOpen:     KindHeadingClose,
	KindBlockquoteOpen:  KindBlockquoteClose,
	KindBulletListOpen:  KindBulletListClose,
	KindOrderedListOpen: KindOrderedListClose,
	KindListItemOpen:    KindListItemClose,
	KindDivOpen:         KindDivClose,
}

var corpus = []string{
	"",
	"\n\n\n",
	":::{note}\n:title: hi\n:::\nfoo\n",
	"::::{a}\n:::{b}\n- x\n- y\n\n> q\n:::\n::::\n",
	":::\n> :::\n> unclosed\n",
	"- :::{tip}\n  nested\n  :::\n- after\n",
	"> - a\n>   - b\n> lazy\n",
	"# h\n(t)=\n% c\n+++\n[d]: /x\n***\n```\ncode\n",
	"1. one\n   1. two\n      1. three\n",
	"<!-- comment\nstill -->\n\n    indented\n",
	strings.Repeat("> ", 30) + "deep\n",
	"\t- tab\n\t\t- nested tab\n",
}

func TestParse_OpenCloseBalanced(t *testing.T) {
	for _, input := range corpus {
		toks := ParseBlocks(input, withColonFence)
		var stack []Kind
		for i, tok := range toks {
			if tok.Span != nil && tok.Span.Start >= tok.Span.End {
				t.Errorf("%q: token %d (%s) has empty span %+v", input, i, tok.Kind, *tok.Span)
			}
			switch tok.Nesting {
			case 1:
				stack = append(stack, tok.Kind)
			case -1:
				if len(stack) == 0 {
					t.Fatalf("%q: unmatched %s at %d", input, tok.Kind, i)
				}
				open := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if closeOf[open] != tok.Kind {
					t.Fatalf("%q: %s closed by %s at %d", input, open, tok.Kind, i)
				}
			}
		}
		if len(stack) != 0 {
			t.Errorf("%q: unclosed tokens %v", input, stack)
		}
	}
}

func TestParse_Idempotent(t *testing.T) {
	p := New(withColonFence)
	for _, input := range corpus {
		a, b := p.Parse(input), p.Parse(input)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%q: parses differ", input)
		}
	}
}

func TestNew_RuleOrder(t *testing.T) {
	want := []string{
		"front_matter", "code", "colon_fence", "fence", "myst_line_comment",
		"blockquote", "myst_block_break", "myst_target", "hr", "list",
		"definition", "html_block", "heading", "lheading", "paragraph",
	}
	if got := New(withColonFence).RuleNames(); !slices.Equal(got, want) {
		t.Errorf("rules = %v, want %v", got, want)
	}
	if got := New(Options{}).RuleNames(); slices.Contains(got, "colon_fence") {
		t.Errorf("colon_fence enabled without the extension: %v", got)
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range KindNames() {
		k, ok := ParseKind(name)
		if !ok || k.String() != name {
			t.Errorf("ParseKind(%q) = %v, %v", name, k, ok)
		}
	}
	if _, ok := ParseKind("invalid"); ok {
		t.Error("invalid kind accepted")
	}
}

func TestNormalizeLabel(t *testing.T) {
	if got := NormalizeLabel("  Foo \t\n Bar "); got != "foo bar" {
		t.Errorf("NormalizeLabel = %q", got)
	}
}
