package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starford/mystindex/internal/apperr"
	"github.com/starford/mystindex/internal/metrics"
	"github.com/starford/mystindex/internal/parser"
	"github.com/starford/mystindex/internal/testutil"
	"github.com/starford/mystindex/internal/workspace"
)

// testEnv sets up an in-memory workspace and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*workspace.Workspace, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*workspace.Workspace, http.Handler) {
	t.Helper()
	ws := workspace.New(testutil.TestDB(t), workspace.Config{
		Parsing:      parser.Options{Extensions: []string{parser.ExtColonFence}},
		FoldingKinds: []parser.Kind{parser.KindDivOpen},
	}, workspace.WithLogger(testutil.Logger()))
	return ws, NewRouter(ws, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		req = httptest.NewRequest(method, target, bytes.NewReader(b))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func q(uri string) string {
	return url.QueryEscape(uri)
}

func TestPutAndGetDocument(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/documents", DocumentRequest{
		URI: "file:///a.md", Version: 1, Text: "(sec-intro)=\n# Intro\n",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/documents?uri="+q("file:///a.md"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var raw struct {
		URI     string `json:"uri"`
		Version int    `json:"version"`
		Tokens  []struct {
			Kind    string       `json:"kind"`
			Span    *parser.Span `json:"span"`
			Content string       `json:"content"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if raw.URI != "file:///a.md" || raw.Version != 1 {
		t.Errorf("document = %s v%d", raw.URI, raw.Version)
	}
	if len(raw.Tokens) == 0 || raw.Tokens[0].Kind != "myst_target" || raw.Tokens[0].Content != "sec-intro" {
		t.Fatalf("tokens = %+v", raw.Tokens)
	}
	if sp := raw.Tokens[0].Span; sp == nil || sp.Start != 0 || sp.End != 1 {
		t.Errorf("target span = %+v", sp)
	}

	// A second PUT changes the open document.
	do(t, router, http.MethodPut, "/documents", DocumentRequest{URI: "file:///a.md", Version: 2, Text: "(renamed)=\n"})
	w = do(t, router, http.MethodGet, "/targets?name=sec-intro", nil)
	if got := decode[TargetsResponse](t, w); len(got.Targets) != 0 {
		t.Errorf("old target after change = %+v", got.Targets)
	}
}

func TestPutDocument_StaleVersionIgnored(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/documents", DocumentRequest{URI: "file:///a.md", Version: 5, Text: "(new)=\n"})

	w := do(t, router, http.MethodPut, "/documents", DocumentRequest{URI: "file:///a.md", Version: 4, Text: "(old)=\n"})
	if w.Code != http.StatusOK {
		t.Fatalf("stale put = %d", w.Code)
	}
	if got := decode[struct {
		Version int `json:"version"`
	}](t, w); got.Version != 5 {
		t.Errorf("version after stale put = %d, want 5", got.Version)
	}
	w = do(t, router, http.MethodGet, "/targets?name=old", nil)
	if got := decode[TargetsResponse](t, w); len(got.Targets) != 0 {
		t.Errorf("stale text indexed: %+v", got.Targets)
	}
}

func TestGetDocument_List(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPut, "/documents", DocumentRequest{URI: "file:///b.md", Text: "b"})
	do(t, router, http.MethodPut, "/documents", DocumentRequest{URI: "file:///a.md", Text: "a"})

	w := do(t, router, http.MethodGet, "/documents", nil)
	got := decode[DocumentListResponse](t, w)
	if strings.Join(got.Documents, ",") != "file:///a.md,file:///b.md" {
		t.Errorf("documents = %v", got.Documents)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/documents?uri="+q("file:///nope.md"), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestPutDocument_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/documents", DocumentRequest{Text: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing uri = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/documents", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", rec.Code)
	}
}

func TestCloseDocument(t *testing.T) {
	ws, router := testEnv(t, "")
	_ = ws.OpenDocument("file:///a.md", 1, "(gone)=\n")

	w := do(t, router, http.MethodDelete, "/documents?uri="+q("file:///a.md"), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", w.Code)
	}
	if _, ok := ws.GetData("file:///a.md"); ok {
		t.Error("document still cached")
	}
	w = do(t, router, http.MethodGet, "/targets?name=gone", nil)
	if got := decode[TargetsResponse](t, w); len(got.Targets) != 0 {
		t.Errorf("targets after close = %+v", got.Targets)
	}

	w = do(t, router, http.MethodDelete, "/documents", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("close without uri = %d, want 400", w.Code)
	}
}

func TestNotebookDefinitions(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/notebooks", NotebookRequest{
		URI: "file:///nb.ipynb",
		Cells: []CellRequest{
			{URI: "cell:a", Text: "[a]: /x\n"},
			{URI: "cell:b", Text: "[text][a]\n"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put notebook = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/definitions?uri="+q("cell:b"), nil)
	defs := decode[DefinitionsResponse](t, w).Definitions
	if len(defs) != 1 || defs[0].Key != "a" || defs[0].URI != "cell:a" {
		t.Errorf("definitions = %+v", defs)
	}

	// Dropping cell a from the notebook hides its definitions.
	do(t, router, http.MethodPut, "/notebooks", NotebookRequest{
		URI:   "file:///nb.ipynb",
		Cells: []CellRequest{{URI: "cell:b", Version: 2, Text: "[text][a]\n"}},
	})
	w = do(t, router, http.MethodGet, "/definitions?uri="+q("cell:b"), nil)
	if defs := decode[DefinitionsResponse](t, w).Definitions; len(defs) != 0 {
		t.Errorf("definitions after cell removal = %+v", defs)
	}

	w = do(t, router, http.MethodDelete, "/notebooks?uri="+q("file:///nb.ipynb"), nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("close notebook = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/documents?uri="+q("cell:b"), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("cell after notebook close = %d, want 404", w.Code)
	}
}

func TestPutNotebook_CellWithoutURI(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/notebooks", NotebookRequest{
		URI:   "file:///nb.ipynb",
		Cells: []CellRequest{{Text: "x"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("cell without uri = %d, want 400", w.Code)
	}
}

func TestTargets(t *testing.T) {
	ws, router := testEnv(t, "")
	_ = ws.OpenDocument("file:///a.md", 1, "(sec-a)=\n\n(fig-a)=\n")
	_ = ws.OpenDocument("file:///b.md", 1, "(sec-a)=\n")

	w := do(t, router, http.MethodGet, "/targets?name=sec-a", nil)
	if got := decode[TargetsResponse](t, w).Targets; len(got) != 2 {
		t.Errorf("by name = %+v", got)
	}

	w = do(t, router, http.MethodGet, "/targets", nil)
	if got := decode[TargetsResponse](t, w).Targets; len(got) != 2 {
		t.Errorf("distinct = %+v", got)
	}

	w = do(t, router, http.MethodGet, "/targets?distinct=false&prefix=sec-", nil)
	got := decode[TargetsResponse](t, w).Targets
	if len(got) != 2 || got[0].URI != "file:///a.md" || got[1].URI != "file:///b.md" {
		t.Errorf("prefix = %+v", got)
	}

	w = do(t, router, http.MethodGet, "/targets?distinct=maybe", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad distinct = %d, want 400", w.Code)
	}
}

func TestTokensAtAndFolding(t *testing.T) {
	ws, router := testEnv(t, "")
	_ = ws.OpenDocument("file:///a.md", 1, ":::{note}\nbody\n:::\n")

	w := do(t, router, http.MethodGet, "/documents/line?uri="+q("file:///a.md")+"&line=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("line status = %d", w.Code)
	}
	var lines struct {
		Tokens []struct {
			Kind string `json:"kind"`
		} `json:"tokens"`
	}
	_ = json.NewDecoder(w.Body).Decode(&lines)
	if len(lines.Tokens) == 0 || lines.Tokens[0].Kind != "div_open" {
		t.Errorf("tokens at line 1 = %+v", lines.Tokens)
	}

	w = do(t, router, http.MethodGet, "/documents/line?uri="+q("file:///a.md")+"&line=-1", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative line = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/folding?uri="+q("file:///a.md"), nil)
	ranges := decode[FoldingResponse](t, w).Ranges
	if len(ranges) != 1 || ranges[0].StartLine != 0 || ranges[0].EndLine != 2 {
		t.Errorf("ranges = %+v", ranges)
	}

	w = do(t, router, http.MethodGet, "/folding?uri="+q("file:///nope.md"), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("folding of missing document = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()
	_, apiRouter := testEnv(t, "")

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Mount("/api", apiRouter)

	req := httptest.NewRequest(http.MethodGet, "/api/folding?uri="+q("file:///nope.md"), nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := promtest.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/folding", "404"))
	if got != 1 {
		t.Errorf("requests{GET,/api/folding,404} = %v, want 1", got)
	}
}

func TestStatusWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	var _ http.Flusher = sw
	sw.Flush()
	if !rec.Flushed {
		t.Error("Flush not forwarded")
	}
}

func TestWriteError_Status(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("workspace: change: %w", apperr.ErrNotOpen), http.StatusConflict},
		{apperr.ErrNotFound, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, "test", "file:///a.md", tt.err)
		if w.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}
