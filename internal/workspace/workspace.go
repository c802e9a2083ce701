// Package workspace owns the analysis state of one editing session: the
// document cache for open documents and notebook cells, and the project-wide
// target index. All mutations go through a single Workspace, which serializes
// them.
package workspace

import (
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/mystindex/internal/analysis"
	"github.com/starford/mystindex/internal/apperr"
	"github.com/starford/mystindex/internal/cache"
	"github.com/starford/mystindex/internal/index"
	"github.com/starford/mystindex/internal/metrics"
	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/parser"
)

// Event kinds passed to an EventCallback.
const (
	EventDocumentUpdated = "document.updated"
	EventDocumentRemoved = "document.removed"
	EventProjectScanned  = "project.scanned"
)

// EventCallback is called after a mutation has been applied. uri is empty for
// project-wide events.
type EventCallback func(kind, uri string)

// Config selects the grammar and the folding behavior of a workspace.
type Config struct {
	Parsing      parser.Options
	FoldingKinds []parser.Kind
}

// Option configures optional collaborators of a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithMetrics records analysis metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workspace) { w.metrics = m }
}

// WithEventCallback registers cb for change notifications.
func WithEventCallback(cb EventCallback) Option {
	return func(w *Workspace) { w.onEvent = cb }
}

// Cell is one cell of a notebook.
type Cell struct {
	URI     string
	Version int
	Text    string
}

// Workspace is the single writer of the document cache and the target index.
// Reads may run concurrently with each other and with writers.
type Workspace struct {
	mu        sync.Mutex
	parser    *parser.Parser
	folding   []parser.Kind
	docs      *cache.Documents
	targets   index.TargetIndex
	notebooks map[string]struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
	onEvent EventCallback
}

// New creates a workspace that stores project targets in targets.
func New(targets index.TargetIndex, cfg Config, opts ...Option) *Workspace {
	w := &Workspace{
		parser:    parser.New(cfg.Parsing),
		folding:   cfg.FoldingKinds,
		docs:      cache.New(),
		targets:   targets,
		notebooks: make(map[string]struct{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Parser returns the parser shared by all analyses of this workspace.
func (w *Workspace) Parser() *parser.Parser {
	return w.parser
}

// OpenDocument analyzes text and publishes it as the current state of uri.
func (w *Workspace) OpenDocument(uri string, version int, text string) error {
	w.mu.Lock()
	err := w.publish(uri, version, text, metrics.SourceEditor)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.emit(EventDocumentUpdated, uri)
	return nil
}

// ChangeDocument re-analyzes an open document. A version older than the
// cached one is ignored.
func (w *Workspace) ChangeDocument(uri string, version int, text string) error {
	return w.update(uri, version, text, true)
}

// SyncDocument opens uri, or changes it when it is already open, under one
// lock. A version older than the cached one is ignored.
func (w *Workspace) SyncDocument(uri string, version int, text string) error {
	return w.update(uri, version, text, false)
}

func (w *Workspace) update(uri string, version int, text string, mustBeOpen bool) error {
	w.mu.Lock()
	snap, ok := w.docs.GetData(uri)
	if !ok && mustBeOpen {
		w.mu.Unlock()
		return fmt.Errorf("workspace: change %s: %w", uri, apperr.ErrNotOpen)
	}
	if ok && version < snap.Version {
		w.mu.Unlock()
		w.logger.Debug("workspace: stale change ignored",
			slog.String("uri", uri),
			slog.Int("version", version),
			slog.Int("cached_version", snap.Version))
		return nil
	}
	err := w.publish(uri, version, text, metrics.SourceEditor)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.emit(EventDocumentUpdated, uri)
	return nil
}

// CloseDocument drops uri, and any cells registered under it, from both
// caches. Closing a document that is not open is a no-op.
func (w *Workspace) CloseDocument(uri string) error {
	return w.remove(uri)
}

// RemoveFile handles a file deleted on disk.
func (w *Workspace) RemoveFile(uri string) error {
	return w.remove(uri)
}

// OpenNotebook registers every cell under notebookURI and analyzes it. Cells
// of the same notebook see each other's definitions. Opening a notebook that
// is already open replaces its cell set like ChangeNotebook.
func (w *Workspace) OpenNotebook(notebookURI string, cells []Cell) error {
	w.mu.Lock()
	w.notebooks[notebookURI] = struct{}{}
	removed, updated, err := w.replaceCells(notebookURI, cells)
	w.mu.Unlock()

	w.emitCells(removed, updated)
	return err
}

// ChangeNotebook replaces the cell set of an open notebook. Cells missing from
// cells are removed.
func (w *Workspace) ChangeNotebook(notebookURI string, cells []Cell) error {
	w.mu.Lock()
	if _, ok := w.notebooks[notebookURI]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("workspace: change notebook %s: %w", notebookURI, apperr.ErrNotOpen)
	}
	removed, updated, err := w.replaceCells(notebookURI, cells)
	w.mu.Unlock()

	w.emitCells(removed, updated)
	return err
}

// replaceCells drops the registered cells of notebookURI that are missing
// from cells, then publishes cells. Callers hold w.mu.
func (w *Workspace) replaceCells(notebookURI string, cells []Cell) (removed, updated []string, err error) {
	keep := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		keep[c.URI] = struct{}{}
	}
	for _, uri := range w.docs.Children(notebookURI) {
		if _, ok := keep[uri]; ok {
			continue
		}
		dropped, rmErr := w.purge(uri)
		removed = append(removed, dropped...)
		if rmErr != nil {
			return removed, nil, rmErr
		}
	}
	updated, err = w.publishCells(notebookURI, cells)
	return removed, updated, err
}

func (w *Workspace) emitCells(removed, updated []string) {
	for _, uri := range removed {
		w.emit(EventDocumentRemoved, uri)
	}
	for _, uri := range updated {
		w.emit(EventDocumentUpdated, uri)
	}
}

// CloseNotebook removes the notebook and all of its cells.
func (w *Workspace) CloseNotebook(notebookURI string) error {
	return w.remove(notebookURI)
}

// AnalyzeFile refreshes the targets of a file that changed on disk. Files
// open in the editor and files whose content is unchanged are skipped. It
// reports whether the index was updated.
func (w *Workspace) AnalyzeFile(uri string, data []byte) (bool, error) {
	w.mu.Lock()
	indexed, err := w.analyzeFile(uri, data, metrics.SourceDisk)
	w.mu.Unlock()
	if err != nil || !indexed {
		return false, err
	}
	w.emit(EventDocumentUpdated, uri)
	return true, nil
}

// GetData returns the cached snapshot of an open document or cell.
func (w *Workspace) GetData(uri string) (*cache.Snapshot, bool) {
	return w.docs.GetData(uri)
}

// Documents returns the URIs held in the document cache.
func (w *Workspace) Documents() []string {
	return w.docs.URIs()
}

// TokensAt returns the tokens whose span covers line of an open document.
func (w *Workspace) TokensAt(uri string, line int) ([]parser.Token, bool) {
	snap, ok := w.docs.GetData(uri)
	if !ok {
		return nil, false
	}
	idx := snap.LineIndex.At(line)
	out := make([]parser.Token, 0, len(idx))
	for _, i := range idx {
		out = append(out, snap.Tokens[i])
	}
	return out, true
}

// GetTargets returns every target record named name.
func (w *Workspace) GetTargets(name string) ([]models.Target, error) {
	return w.targets.GetTargets(name)
}

// IterateTargets yields the project targets in insertion order.
func (w *Workspace) IterateTargets(distinct bool, filter func(models.Target) bool) iter.Seq[models.Target] {
	return w.targets.IterateTargets(distinct, filter)
}

// IterateDefinitions yields the definitions visible from uri.
func (w *Workspace) IterateDefinitions(uri string, distinct bool) iter.Seq[models.Definition] {
	return w.docs.IterateDefinitions(uri, distinct)
}

// FoldingRanges returns the foldable regions of an open document.
func (w *Workspace) FoldingRanges(uri string) ([]analysis.FoldingRange, bool) {
	snap, ok := w.docs.GetData(uri)
	if !ok {
		return nil, false
	}
	return analysis.FoldingRanges(snap.Tokens, w.folding), true
}

// publish analyzes text and replaces the state of uri in both caches.
// Callers hold w.mu.
func (w *Workspace) publish(uri string, version int, text, source string) error {
	res := w.analyze(uri, text, source)

	if err := w.targets.ReplaceURI(uri, res.Targets); err != nil {
		return fmt.Errorf("workspace: publish %s: %w", uri, err)
	}
	w.docs.SetData(uri, cache.Snapshot{
		Version:     version,
		Tokens:      res.Tokens,
		LineIndex:   res.LineIndex,
		Definitions: res.Definitions,
	})
	w.updateGauges()
	return nil
}

// publishCells registers and analyzes cells in order. It returns the cells
// that were published before any error. Callers hold w.mu.
func (w *Workspace) publishCells(notebookURI string, cells []Cell) ([]string, error) {
	updated := make([]string, 0, len(cells))
	for _, c := range cells {
		w.docs.SetParentToChildURI(notebookURI, c.URI)
		if err := w.publish(c.URI, c.Version, c.Text, metrics.SourceNotebook); err != nil {
			return updated, err
		}
		updated = append(updated, c.URI)
	}
	return updated, nil
}

func (w *Workspace) remove(uri string) error {
	w.mu.Lock()
	removed, err := w.purge(uri)
	w.mu.Unlock()

	for _, u := range removed {
		w.emit(EventDocumentRemoved, u)
	}
	return err
}

// purge drops uri and its children from both caches and returns the dropped
// URIs. Callers hold w.mu.
func (w *Workspace) purge(uri string) ([]string, error) {
	delete(w.notebooks, uri)
	removed := w.docs.RemoveURI(uri)
	for i, u := range removed {
		if err := w.targets.RemoveURI(u); err != nil {
			w.updateGauges()
			return removed[:i], fmt.Errorf("workspace: remove %s: %w", u, err)
		}
	}
	w.updateGauges()
	return removed, nil
}

func (w *Workspace) analyze(uri, text, source string) *analysis.Result {
	start := time.Now()
	res := analysis.AnalyzeWith(w.parser, uri, text)
	if w.metrics != nil {
		w.metrics.AnalysesTotal.WithLabelValues(source).Inc()
		w.metrics.AnalysisDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}
	return res
}

func (w *Workspace) updateGauges() {
	if w.metrics == nil {
		return
	}
	w.metrics.CachedDocuments.Set(float64(w.docs.Len()))
	if n, err := w.targets.Count(); err == nil {
		w.metrics.TargetRecords.Set(float64(n))
	}
}

func (w *Workspace) emit(kind, uri string) {
	if w.onEvent != nil {
		w.onEvent(kind, uri)
	}
}
