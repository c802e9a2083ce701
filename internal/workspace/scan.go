package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mystindex/internal/analysis"
	"github.com/starford/mystindex/internal/checksum"
	"github.com/starford/mystindex/internal/metrics"
	"github.com/starford/mystindex/internal/storage"
)

// scanConcurrency bounds the number of files read and parsed at once.
const scanConcurrency = 8

// ProgressFunc reports scan progress. It may be called from several
// goroutines.
type ProgressFunc func(done, total int)

// ScanResult summarizes a project scan.
type ScanResult struct {
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
	Targets int `json:"targets"`
}

type scanned struct {
	uri string
	sum string
	res *analysis.Result
}

// Scan analyzes every file of the project and rebuilds the target index from
// the results. Documents open in the editor keep their in-memory targets.
// Unreadable files are logged and skipped.
func (w *Workspace) Scan(ctx context.Context, store storage.Provider, progress ProgressFunc) (ScanResult, error) {
	start := time.Now()

	files, err := store.List("")
	if err != nil {
		return ScanResult{}, fmt.Errorf("workspace: scan: %w", err)
	}

	results := make([]*scanned, len(files))
	var done atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			defer func() {
				if progress != nil {
					progress(int(done.Add(1)), len(files))
				}
			}()

			data, err := store.Read(f.Path)
			if err != nil {
				w.logger.Warn("workspace: scan read failed",
					slog.String("path", f.Path),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = &scanned{
				uri: f.URI,
				sum: checksum.Source(data),
				res: w.analyze(f.URI, string(data), metrics.SourceScan),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScanResult{}, fmt.Errorf("workspace: scan: %w", err)
	}

	w.mu.Lock()
	summary, err := w.replaceTargets(results)
	w.mu.Unlock()
	if err != nil {
		return ScanResult{}, err
	}

	if w.metrics != nil {
		w.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}
	w.logger.Info("workspace: scan complete",
		slog.Int("files", summary.Files),
		slog.Int("skipped", summary.Skipped),
		slog.Int("targets", summary.Targets),
		slog.Duration("duration", time.Since(start)))
	w.emit(EventProjectScanned, "")
	return summary, nil
}

// replaceTargets clears the index and inserts the scanned targets, then the
// targets of every open document. Callers hold w.mu.
func (w *Workspace) replaceTargets(results []*scanned) (ScanResult, error) {
	var summary ScanResult

	if err := w.targets.Clear(); err != nil {
		return summary, fmt.Errorf("workspace: scan: %w", err)
	}
	for _, r := range results {
		if r == nil {
			summary.Skipped++
			continue
		}
		summary.Files++
		if _, open := w.docs.GetData(r.uri); open {
			continue
		}
		if err := w.targets.InsertTargets(r.res.Targets); err != nil {
			return summary, fmt.Errorf("workspace: scan: %w", err)
		}
		if err := w.targets.SetChecksum(r.uri, r.sum); err != nil {
			return summary, fmt.Errorf("workspace: scan: %w", err)
		}
	}

	for _, uri := range w.docs.URIs() {
		snap, ok := w.docs.GetData(uri)
		if !ok {
			continue
		}
		if err := w.targets.InsertTargets(analysis.ExtractTargets(uri, snap.Tokens)); err != nil {
			return summary, fmt.Errorf("workspace: scan: %w", err)
		}
	}

	n, err := w.targets.Count()
	if err != nil {
		return summary, fmt.Errorf("workspace: scan: %w", err)
	}
	summary.Targets = n
	w.updateGauges()
	return summary, nil
}

// analyzeFile indexes a closed file from its disk content. Callers hold w.mu.
func (w *Workspace) analyzeFile(uri string, data []byte, source string) (bool, error) {
	if _, open := w.docs.GetData(uri); open {
		return false, nil
	}
	sum := checksum.Source(data)
	old, err := w.targets.GetChecksum(uri)
	if err != nil {
		return false, fmt.Errorf("workspace: analyze %s: %w", uri, err)
	}
	if old == sum {
		return false, nil
	}

	res := w.analyze(uri, string(data), source)
	if err := w.targets.ReplaceURI(uri, res.Targets); err != nil {
		return false, fmt.Errorf("workspace: analyze %s: %w", uri, err)
	}
	if err := w.targets.SetChecksum(uri, sum); err != nil {
		return false, fmt.Errorf("workspace: analyze %s: %w", uri, err)
	}
	w.updateGauges()
	return true, nil
}
