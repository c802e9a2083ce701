package workspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mystindex/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the project root and keeps the target
// index in step with the files on disk until ctx is cancelled. Changes are
// reported through the workspace's event callback.
//
// New directories created at runtime are added to the watch list. Renames,
// and removals of anything other than a single .md file, trigger a
// reconciliation pass that drops targets of files that no longer exist.
func Watch(ctx context.Context, ws *Workspace, store storage.Provider, root string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ws, store, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if isHidden(info.Name()) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					analyzeNewDir(ws, store, root, absPath, logger)
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				// A directory renamed or removed takes its files along
				// without a per-file event.
				if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
					scheduleReconcile()
				}
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			uri := store.URI(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				analyzeFromDisk(ws, store, rel, logger)

			case ev.Op&fsnotify.Remove != 0:
				if rmErr := ws.RemoveFile(uri); rmErr != nil {
					logger.Warn("watcher: remove failed", slog.String("uri", uri), slog.String("error", rmErr.Error()))
					continue
				}
				logger.Debug("watcher: removed", slog.String("uri", uri))

			case ev.Op&fsnotify.Rename != 0:
				// The new name, if still inside the project, arrives as a
				// separate Create event.
				if rmErr := ws.RemoveFile(uri); rmErr != nil {
					logger.Warn("watcher: rename remove failed", slog.String("uri", uri), slog.String("error", rmErr.Error()))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func analyzeFromDisk(ws *Workspace, store storage.Provider, rel string, logger *slog.Logger) {
	data, err := store.Read(rel)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	uri := store.URI(rel)
	indexed, err := ws.AnalyzeFile(uri, data)
	if err != nil {
		logger.Warn("watcher: analyze failed", slog.String("uri", uri), slog.String("error", err.Error()))
		return
	}
	if indexed {
		logger.Debug("watcher: analyzed", slog.String("uri", uri))
	}
}

// reconcile drops index entries whose file is gone and analyzes files that
// are new or changed.
func reconcile(ws *Workspace, store storage.Provider, logger *slog.Logger) {
	checksums, err := ws.targets.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	files, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.URI] = struct{}{}
	}
	for uri := range checksums {
		if _, ok := onDisk[uri]; ok {
			continue
		}
		if rmErr := ws.RemoveFile(uri); rmErr == nil {
			logger.Debug("reconcile: removed stale", slog.String("uri", uri))
		}
	}
	for _, f := range files {
		analyzeFromDisk(ws, store, f.Path, logger)
	}
}

// analyzeNewDir analyzes the .md files already present in a new directory.
func analyzeNewDir(ws *Workspace, store storage.Provider, root, dir string, logger *slog.Logger) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		analyzeFromDisk(ws, store, rel, logger)
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
