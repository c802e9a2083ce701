package mcpserver

// SyntaxReference describes the block constructs the analysis engine
// recognizes, so LLM consumers can write documents whose targets and
// definitions are indexed.
const SyntaxReference = `# MyST Block Syntax Reference

The engine parses CommonMark block structure plus the MyST extensions below.
Line numbers reported by every tool are 0-indexed; spans are half-open
` + "`[start, end)`" + `.

## Targets

` + "```" + `markdown
(sec-intro)=
# Introduction
` + "```" + `

- A target line is ` + "`(name)=`" + ` alone on a line.
- Names are 1 to 100 characters from ` + "`a-z A-Z 0-9 | @ < > * . / _ + : -`" + `.
- The same name may be declared in several documents; ` + "`find_targets`" + `
  returns every declaration, ` + "`list_targets`" + ` the first per name.

## Link reference definitions

` + "```" + `markdown
[ref]: https://example.com "Example"
` + "```" + `

- Labels are matched case-insensitively with whitespace collapsed.
- The first definition of a label wins.
- Cells of one notebook share their definitions.

## Colon-fence divs

` + "```" + `markdown
:::{note} Optional argument
:class: tip
Nested **Markdown** content.
:::
` + "```" + `

- Opened by three or more colons; closed by a line of at least as many colons.
- Options follow the opener either as ` + "`:key: value`" + ` lines or as a YAML
  block between ` + "`---`" + ` lines. Options that do not decode to a mapping
  are reported on the token as ` + "`optError`" + `.
- A div without a closing fence ends with its enclosing block and is reported
  with ` + "`closed: false`" + `.

## Comments and block breaks

` + "```" + `markdown
% a comment line, not rendered
+++ optional metadata
` + "```" + `

## Front matter

A YAML block between ` + "`---`" + ` lines at the very top of the document.
`
