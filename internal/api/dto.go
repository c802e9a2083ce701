package api

import (
	"github.com/starford/mystindex/internal/analysis"
	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/parser"
)

// DocumentRequest is the body of PUT /api/documents. It opens the document or
// replaces the text of an open one.
type DocumentRequest struct {
	URI     string `json:"uri" example:"file:///project/intro.md"`
	Version int    `json:"version" example:"3"`
	Text    string `json:"text" example:"(sec-intro)=\n# Intro\n"`
}

// CellRequest is one cell of a NotebookRequest.
type CellRequest struct {
	URI     string `json:"uri" example:"vscode-notebook-cell:/project/nb.ipynb#a"`
	Version int    `json:"version"`
	Text    string `json:"text"`
}

// NotebookRequest is the body of PUT /api/notebooks.
type NotebookRequest struct {
	URI   string        `json:"uri" example:"file:///project/nb.ipynb"`
	Cells []CellRequest `json:"cells"`
}

// DocumentResponse is the cached state of one document.
type DocumentResponse struct {
	URI         string              `json:"uri"`
	Version     int                 `json:"version"`
	Tokens      []parser.Token      `json:"tokens"`
	Definitions []models.Definition `json:"definitions"`
}

// DocumentListResponse lists the URIs held in the document cache.
type DocumentListResponse struct {
	Documents []string `json:"documents"`
}

// LineTokensResponse lists the tokens covering one line.
type LineTokensResponse struct {
	URI    string         `json:"uri"`
	Line   int            `json:"line"`
	Tokens []parser.Token `json:"tokens"`
}

// DefinitionsResponse wraps the definitions visible from a document.
type DefinitionsResponse struct {
	Definitions []models.Definition `json:"definitions"`
}

// TargetsResponse wraps target records.
type TargetsResponse struct {
	Targets []models.Target `json:"targets"`
}

// FoldingResponse wraps the folding ranges of a document.
type FoldingResponse struct {
	Ranges []analysis.FoldingRange `json:"ranges"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
