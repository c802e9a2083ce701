package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/starford/mystindex/internal/apperr"
	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/workspace"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	ws *workspace.Workspace
}

// NewHandler creates a new Handler.
func NewHandler(ws *workspace.Workspace) *Handler {
	return &Handler{ws: ws}
}

// PutDocument handles PUT /api/documents.
//
//	@Summary		Open a document or replace the text of an open one
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DocumentRequest	true	"Document text"
//	@Success		200		{object}	DocumentResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [put]
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.URI == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("uri is required"))
		return
	}

	if err := h.ws.SyncDocument(req.URI, req.Version, req.Text); err != nil {
		writeError(w, "put document", req.URI, err)
		return
	}
	h.writeDocument(w, req.URI)
}

// CloseDocument handles DELETE /api/documents?uri=.
//
//	@Summary		Close a document
//	@Tags			documents
//	@Param			uri	query	string	true	"Document URI"
//	@Success		204	"Document closed"
//	@Security		BearerAuth
//	@Router			/documents [delete]
func (h *Handler) CloseDocument(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireURI(w, r)
	if !ok {
		return
	}
	if err := h.ws.CloseDocument(uri); err != nil {
		writeError(w, "close document", uri, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutNotebook handles PUT /api/notebooks.
//
//	@Summary		Open a notebook or replace its cells
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NotebookRequest	true	"Notebook cells"
//	@Success		200		{object}	DocumentListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks [put]
func (h *Handler) PutNotebook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req NotebookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.URI == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("uri is required"))
		return
	}
	cells := make([]workspace.Cell, 0, len(req.Cells))
	uris := make([]string, 0, len(req.Cells))
	for _, c := range req.Cells {
		if c.URI == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("every cell needs a uri"))
			return
		}
		cells = append(cells, workspace.Cell{URI: c.URI, Version: c.Version, Text: c.Text})
		uris = append(uris, c.URI)
	}

	// Opening an open notebook replaces its cells.
	if err := h.ws.OpenNotebook(req.URI, cells); err != nil {
		writeError(w, "put notebook", req.URI, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: uris})
}

// CloseNotebook handles DELETE /api/notebooks?uri=.
//
//	@Summary		Close a notebook and all of its cells
//	@Tags			notebooks
//	@Param			uri	query	string	true	"Notebook URI"
//	@Success		204	"Notebook closed"
//	@Security		BearerAuth
//	@Router			/notebooks [delete]
func (h *Handler) CloseNotebook(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireURI(w, r)
	if !ok {
		return
	}
	if err := h.ws.CloseNotebook(uri); err != nil {
		writeError(w, "close notebook", uri, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDocument handles GET /api/documents. Without a uri it lists the cached
// documents.
//
//	@Summary		Get the cached state of a document
//	@Tags			documents
//	@Produce		json
//	@Param			uri	query		string	false	"Document URI"
//	@Success		200	{object}	DocumentResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeJSON(w, http.StatusOK, DocumentListResponse{Documents: nonNil(h.ws.Documents())})
		return
	}
	h.writeDocument(w, uri)
}

func (h *Handler) writeDocument(w http.ResponseWriter, uri string) {
	snap, ok := h.ws.GetData(uri)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody(apperr.ErrNotFound.Error()))
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{
		URI:         snap.URI,
		Version:     snap.Version,
		Tokens:      nonNil(snap.Tokens),
		Definitions: nonNil(snap.Definitions),
	})
}

// TokensAt handles GET /api/documents/line?uri=&line=.
//
//	@Summary		List the tokens covering a line
//	@Tags			documents
//	@Produce		json
//	@Param			uri		query		string	true	"Document URI"
//	@Param			line	query		int		true	"0-indexed line"
//	@Success		200		{object}	LineTokensResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/line [get]
func (h *Handler) TokensAt(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireURI(w, r)
	if !ok {
		return
	}
	line, err := strconv.Atoi(r.URL.Query().Get("line"))
	if err != nil || line < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("line must be a non-negative integer"))
		return
	}
	tokens, ok := h.ws.TokensAt(uri, line)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody(apperr.ErrNotFound.Error()))
		return
	}
	writeJSON(w, http.StatusOK, LineTokensResponse{URI: uri, Line: line, Tokens: nonNil(tokens)})
}

// Definitions handles GET /api/definitions?uri=&distinct=.
//
//	@Summary		List the definitions visible from a document
//	@Tags			definitions
//	@Produce		json
//	@Param			uri			query		string	true	"Document URI"
//	@Param			distinct	query		bool	false	"First definition per key only (default true)"
//	@Success		200			{object}	DefinitionsResponse
//	@Security		BearerAuth
//	@Router			/definitions [get]
func (h *Handler) Definitions(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireURI(w, r)
	if !ok {
		return
	}
	distinct, ok := boolParam(w, r, "distinct", true)
	if !ok {
		return
	}
	defs := []models.Definition{}
	for d := range h.ws.IterateDefinitions(uri, distinct) {
		defs = append(defs, d)
	}
	writeJSON(w, http.StatusOK, DefinitionsResponse{Definitions: defs})
}

// Targets handles GET /api/targets. With name it returns every record of that
// name; otherwise it iterates the index, optionally by name prefix.
//
//	@Summary		Query the project target index
//	@Tags			targets
//	@Produce		json
//	@Param			name		query		string	false	"Exact target name"
//	@Param			prefix		query		string	false	"Name prefix filter"
//	@Param			distinct	query		bool	false	"First record per name only (default true)"
//	@Success		200			{object}	TargetsResponse
//	@Security		BearerAuth
//	@Router			/targets [get]
func (h *Handler) Targets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if name := q.Get("name"); name != "" {
		targets, err := h.ws.GetTargets(name)
		if err != nil {
			writeError(w, "get targets", name, err)
			return
		}
		writeJSON(w, http.StatusOK, TargetsResponse{Targets: nonNil(targets)})
		return
	}

	distinct, ok := boolParam(w, r, "distinct", true)
	if !ok {
		return
	}
	var filter func(models.Target) bool
	if prefix := q.Get("prefix"); prefix != "" {
		filter = func(t models.Target) bool { return strings.HasPrefix(t.Name, prefix) }
	}
	targets := []models.Target{}
	for t := range h.ws.IterateTargets(distinct, filter) {
		targets = append(targets, t)
	}
	writeJSON(w, http.StatusOK, TargetsResponse{Targets: targets})
}

// Folding handles GET /api/folding?uri=.
//
//	@Summary		Folding ranges of a document
//	@Tags			documents
//	@Produce		json
//	@Param			uri	query		string	true	"Document URI"
//	@Success		200	{object}	FoldingResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folding [get]
func (h *Handler) Folding(w http.ResponseWriter, r *http.Request) {
	uri, ok := requireURI(w, r)
	if !ok {
		return
	}
	ranges, ok := h.ws.FoldingRanges(uri)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody(apperr.ErrNotFound.Error()))
		return
	}
	writeJSON(w, http.StatusOK, FoldingResponse{Ranges: nonNil(ranges)})
}

func requireURI(w http.ResponseWriter, r *http.Request) (string, bool) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'uri' is required"))
		return "", false
	}
	return uri, true
}

func boolParam(w http.ResponseWriter, r *http.Request, name string, def bool) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter '"+name+"' must be a boolean"))
		return false, false
	}
	return v, true
}
