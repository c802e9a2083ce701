// Package storage defines the project file-system abstraction.
package storage

import "github.com/starford/mystindex/internal/models"

// Provider gives read access to the Markdown files of a project.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to the
	// project root).
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the project
	// root).
	Read(path string) ([]byte, error)
	// URI returns the file:// URI of path.
	URI(path string) string
	// Path maps a file:// URI back to a path relative to the project root.
	Path(uri string) (string, bool)
}
