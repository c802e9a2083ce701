package parser

import "fmt"

// ruleFunc tries to recognize a block construct starting at startLine. In
// silent mode it only reports whether the construct starts there (used to
// decide whether a line interrupts a paragraph, list or blockquote); otherwise
// it pushes tokens and advances s.line past the consumed lines.
type ruleFunc func(s *state, startLine, endLine int, silent bool) bool

// Alt chain names. A rule listed in a chain may interrupt the construct of
// that name.
const (
	chainParagraph  = "paragraph"
	chainReference  = "reference"
	chainBlockquote = "blockquote"
	chainList       = "list"
)

var interruptsAll = []string{chainParagraph, chainReference, chainBlockquote, chainList}

type ruleEntry struct {
	name string
	fn   ruleFunc
	alt  []string
}

// ruler keeps block rules in priority order. The first rule that accepts a
// line wins, so registration order decides which construct shadows which.
type ruler struct {
	rules  []ruleEntry
	chains map[string][]ruleFunc
}

func (r *ruler) push(name string, fn ruleFunc, alt ...string) {
	r.rules = append(r.rules, ruleEntry{name: name, fn: fn, alt: alt})
	r.chains = nil
}

// before inserts a rule ahead of the rule called anchor.
func (r *ruler) before(anchor, name string, fn ruleFunc, alt ...string) {
	idx := r.indexOf(anchor)
	if idx < 0 {
		panic(fmt.Sprintf("parser: no rule named %q", anchor))
	}
	r.rules = append(r.rules, ruleEntry{})
	copy(r.rules[idx+1:], r.rules[idx:])
	r.rules[idx] = ruleEntry{name: name, fn: fn, alt: alt}
	r.chains = nil
}

func (r *ruler) indexOf(name string) int {
	for i, e := range r.rules {
		if e.name == name {
			return i
		}
	}
	return -1
}

// chain returns the rules of an alt chain; the empty name returns all rules.
func (r *ruler) chain(name string) []ruleFunc {
	if r.chains == nil {
		r.compile()
	}
	return r.chains[name]
}

func (r *ruler) compile() {
	r.chains = map[string][]ruleFunc{"": nil}
	for _, e := range r.rules {
		r.chains[""] = append(r.chains[""], e.fn)
		for _, c := range e.alt {
			r.chains[c] = append(r.chains[c], e.fn)
		}
	}
}

func (r *ruler) names() []string {
	out := make([]string, len(r.rules))
	for i, e := range r.rules {
		out[i] = e.name
	}
	return out
}
