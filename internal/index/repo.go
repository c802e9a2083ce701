package index

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/seqs"
)

// InsertTargets appends targets in one transaction. Duplicate names are kept.
func (db *DB) InsertTargets(targets []models.Target) error {
	if len(targets) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := insertTargets(tx, targets); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveURI deletes every target declared in uri and its stored checksum.
func (db *DB) RemoveURI(uri string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := removeURI(tx, uri); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceURI swaps the targets of uri for targets and drops its checksum in a
// single transaction, so readers see either the old records or the new ones.
func (db *DB) ReplaceURI(uri string, targets []models.Target) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := removeURI(tx, uri); err != nil {
		return err
	}
	if err := insertTargets(tx, targets); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTargets(tx *sql.Tx, targets []models.Target) error {
	stmt, err := tx.Prepare(`INSERT INTO targets (name, uri, line) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare target insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range targets {
		var line sql.NullInt64
		if t.Line != nil {
			line = sql.NullInt64{Int64: int64(*t.Line), Valid: true}
		}
		if _, err := stmt.Exec(t.Name, t.URI, line); err != nil {
			return fmt.Errorf("index: insert target: %w", err)
		}
	}
	return nil
}

func removeURI(tx *sql.Tx, uri string) error {
	if _, err := tx.Exec(`DELETE FROM targets WHERE uri = ?`, uri); err != nil {
		return fmt.Errorf("index: remove targets: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE uri = ?`, uri); err != nil {
		return fmt.Errorf("index: remove file: %w", err)
	}
	return nil
}

// Clear drops all targets and checksums.
func (db *DB) Clear() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM targets`)
	_, _ = tx.Exec(`DELETE FROM files`)
	return tx.Commit()
}

// GetTargets returns every target named name, in insertion order.
func (db *DB) GetTargets(name string) ([]models.Target, error) {
	out, err := db.queryTargets(`SELECT name, uri, line FROM targets WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("index: get targets: %w", err)
	}
	return out, nil
}

// IterateTargets yields targets in insertion order, keeping those accepted by
// filter (nil keeps all). With distinct, only the first target per name is
// yielded. Every range queries the database again; a failed query is logged
// and yields nothing.
func (db *DB) IterateTargets(distinct bool, filter func(models.Target) bool) iter.Seq[models.Target] {
	all := func(yield func(models.Target) bool) {
		// Rows are read fully before yielding so the single connection is
		// free while the caller runs.
		targets, err := db.queryTargets(`SELECT name, uri, line FROM targets ORDER BY id`)
		if err != nil {
			db.logger.Warn("index: iterate targets failed", slog.String("error", err.Error()))
			return
		}
		for _, t := range targets {
			if !yield(t) {
				return
			}
		}
	}

	seq := seqs.Filter(all, filter)
	if !distinct {
		return seq
	}
	return seqs.Distinct(seq, func(t models.Target) string { return t.Name })
}

func (db *DB) queryTargets(query string, args ...any) ([]models.Target, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Target
	for rows.Next() {
		var (
			t    models.Target
			line sql.NullInt64
		)
		if err := rows.Scan(&t.Name, &t.URI, &line); err != nil {
			return nil, err
		}
		if line.Valid {
			l := int(line.Int64)
			t.Line = &l
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetChecksum records the content checksum last indexed for uri.
func (db *DB) SetChecksum(uri, sum string) error {
	_, err := db.conn.Exec(`
		INSERT INTO files (uri, checksum) VALUES (?, ?)
		ON CONFLICT(uri) DO UPDATE SET checksum = excluded.checksum
	`, uri, sum)
	if err != nil {
		return fmt.Errorf("index: set checksum: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for uri, or an empty string if the
// file was never indexed.
func (db *DB) GetChecksum(uri string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE uri = ?`, uri).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// Count returns the number of stored targets.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM targets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// AllChecksums returns the stored checksum of every indexed file, keyed by URI.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT uri, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var uri, cs string
		if err := rows.Scan(&uri, &cs); err != nil {
			return nil, err
		}
		out[uri] = cs
	}
	return out, rows.Err()
}
