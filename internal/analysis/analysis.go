// Package analysis turns document text into the derived structures the caches
// store: tokens, the line index, local definitions and targets.
package analysis

import (
	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/parser"
)

// Result is everything derived from one parse of a document.
type Result struct {
	Tokens      []parser.Token
	LineIndex   LineIndex
	Definitions []models.Definition
	Targets     []models.Target
}

// Analyze parses text with a parser configured by opts.
func Analyze(uri, text string, opts parser.Options) *Result {
	return AnalyzeWith(parser.New(opts), uri, text)
}

// AnalyzeWith is Analyze with a prebuilt parser.
func AnalyzeWith(p *parser.Parser, uri, text string) *Result {
	tokens := p.Parse(text).Tokens
	return &Result{
		Tokens:      tokens,
		LineIndex:   BuildLineIndex(tokens),
		Definitions: ExtractDefinitions(uri, tokens),
		Targets:     ExtractTargets(uri, tokens),
	}
}

// ExtractDefinitions collects definition tokens. When a key repeats, the first
// occurrence is kept.
func ExtractDefinitions(uri string, tokens []parser.Token) []models.Definition {
	var out []models.Definition
	seen := make(map[string]struct{})
	for _, t := range tokens {
		meta, ok := t.Meta.(*parser.DefinitionMeta)
		if t.Kind != parser.KindDefinition || !ok {
			continue
		}
		if _, dup := seen[meta.Key]; dup {
			continue
		}
		seen[meta.Key] = struct{}{}

		d := models.Definition{
			Key:   meta.Key,
			Label: meta.Label,
			Title: meta.Title,
			Href:  meta.Href,
			URI:   uri,
		}
		if t.Span != nil {
			d.Line = t.Span.Start
		}
		out = append(out, d)
	}
	return out
}

// ExtractTargets collects target tokens that carry a span.
func ExtractTargets(uri string, tokens []parser.Token) []models.Target {
	var out []models.Target
	for _, t := range tokens {
		if t.Kind != parser.KindTarget || t.Span == nil {
			continue
		}
		line := t.Span.Start
		out = append(out, models.Target{Name: t.Content, URI: uri, Line: &line})
	}
	return out
}
