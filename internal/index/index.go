package index

import (
	"iter"

	"github.com/starford/mystindex/internal/models"
)

// TargetIndex defines the project-wide target store.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type TargetIndex interface {
	InsertTargets(targets []models.Target) error
	RemoveURI(uri string) error
	ReplaceURI(uri string, targets []models.Target) error
	Clear() error
	GetTargets(name string) ([]models.Target, error)
	IterateTargets(distinct bool, filter func(models.Target) bool) iter.Seq[models.Target]
	SetChecksum(uri, sum string) error
	GetChecksum(uri string) (string, error)
	AllChecksums() (map[string]string, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies TargetIndex at compile time.
var _ TargetIndex = (*DB)(nil)
