// Package cache holds the parsed state of documents that are open in the
// editor, and the notebook to cell relation between them.
package cache

import (
	"iter"
	"slices"
	"sync"

	"github.com/starford/mystindex/internal/analysis"
	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/parser"
	"github.com/starford/mystindex/internal/seqs"
)

// Snapshot is the cached state of one document. A snapshot is replaced as a
// whole on every parse and never modified after SetData.
type Snapshot struct {
	URI         string
	Version     int
	Tokens      []parser.Token
	LineIndex   analysis.LineIndex
	Definitions []models.Definition
}

// Documents is the per-session document cache. It is safe for concurrent use.
type Documents struct {
	mu       sync.RWMutex
	docs     map[string]*Snapshot
	children map[string][]string // parent -> cells, in registration order
	parents  map[string]string   // cell -> parent
}

// New returns an empty cache.
func New() *Documents {
	return &Documents{
		docs:     make(map[string]*Snapshot),
		children: make(map[string][]string),
		parents:  make(map[string]string),
	}
}

// SetData replaces the snapshot stored for uri.
func (d *Documents) SetData(uri string, snap Snapshot) {
	snap.URI = uri
	d.mu.Lock()
	d.docs[uri] = &snap
	d.mu.Unlock()
}

// GetData returns the snapshot for uri.
func (d *Documents) GetData(uri string) (*Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.docs[uri]
	return s, ok
}

// RemoveURI drops uri from the cache. Removing a parent also drops all of its
// children; removing a child detaches it from its parent. It returns every URI
// whose state was dropped, uri first.
func (d *Documents) RemoveURI(uri string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := []string{uri}
	delete(d.docs, uri)

	if cells, ok := d.children[uri]; ok {
		for _, c := range cells {
			delete(d.docs, c)
			delete(d.parents, c)
		}
		delete(d.children, uri)
		removed = append(removed, cells...)
	}

	if parent, ok := d.parents[uri]; ok {
		d.detach(parent, uri)
	}
	return removed
}

// SetParentToChildURI registers child as a cell of parent. A child already
// registered under another parent is moved.
func (d *Documents) SetParentToChildURI(parent, child string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.parents[child]; ok {
		if old == parent {
			return
		}
		d.detach(old, child)
	}
	d.parents[child] = parent
	d.children[parent] = append(d.children[parent], child)
}

// detach removes child from parent. Callers hold the write lock.
func (d *Documents) detach(parent, child string) {
	delete(d.parents, child)
	cells := slices.DeleteFunc(d.children[parent], func(c string) bool { return c == child })
	if len(cells) == 0 {
		delete(d.children, parent)
		return
	}
	d.children[parent] = cells
}

// Children returns the cells registered under parent.
func (d *Documents) Children(parent string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.children[parent])
}

// Parent returns the parent uri is registered under.
func (d *Documents) Parent(uri string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.parents[uri]
	return p, ok
}

// URIs returns the cached document URIs in sorted order.
func (d *Documents) URIs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.docs))
	for uri := range d.docs {
		out = append(out, uri)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of cached documents.
func (d *Documents) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// IterateDefinitions yields the definitions of uri followed by those of its
// sibling cells. With distinct, only the first definition per key is yielded.
// Every range re-reads the cache.
func (d *Documents) IterateDefinitions(uri string, distinct bool) iter.Seq[models.Definition] {
	seq := func(yield func(models.Definition) bool) {
		for _, def := range d.gatherDefinitions(uri) {
			if !yield(def) {
				return
			}
		}
	}
	if !distinct {
		return seq
	}
	return seqs.Distinct(seq, func(def models.Definition) string { return def.Key })
}

// gatherDefinitions collects the visible definition lists under the read lock
// so that iteration never holds it.
func (d *Documents) gatherDefinitions(uri string) []models.Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.Definition
	if s, ok := d.docs[uri]; ok {
		out = append(out, s.Definitions...)
	}
	parent, ok := d.parents[uri]
	if !ok {
		return out
	}
	for _, sibling := range d.children[parent] {
		if sibling == uri {
			continue
		}
		if s, ok := d.docs[sibling]; ok {
			out = append(out, s.Definitions...)
		}
	}
	return out
}
