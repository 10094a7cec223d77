// Package storage defines the project file-system abstraction.
package storage

import "github.com/veddartha/cairn/internal/models"

// Provider is the interface for project file operations. All paths are
// relative to the project root; the backend layer translates to and from
// the absolute paths the cache uses as identity.
type Provider interface {
	// List returns metadata for every tracked file under dir (relative to root).
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath, creating parent directories as needed.
	Move(oldPath, newPath string) error
	// Root returns the absolute project root directory.
	Root() string
}
