// Package models defines the domain types shared by the caches and the query
// surface.
package models

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mystindex/internal/parser"
)

// Definition is a link reference definition found in a document.
type Definition struct {
	// Key is the normalized label used for lookups.
	Key   string `json:"key"`
	Label string `json:"label"`
	Title string `json:"title"`
	Href  string `json:"href"`
	// URI and Line locate the declaration, which may live in a sibling cell.
	URI  string `json:"uri"`
	Line int    `json:"line"`
}

// Target is a named anchor declared with "(name)=".
type Target struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
	// Line is nil when the declaration line is unknown.
	Line *int `json:"line"`
}

// DocumentMetadata is a lightweight description of a project file.
type DocumentMetadata struct {
	Path    string    `json:"path"`
	URI     string    `json:"uri"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

var targetNameRe = regexp.MustCompile(parser.TargetNamePattern)

// ValidateTargetName checks name against the characters and length accepted
// by the target syntax.
func ValidateTargetName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Length(1, 100),
		validation.Match(targetNameRe).Error("must contain only letters, digits and |@<>*./_+:-"),
	)
}
