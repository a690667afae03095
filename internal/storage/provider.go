// Package storage defines the document vault file-system abstraction.
package storage

import "github.com/starford/mdeck/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md document under dir (relative to vault root).
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// WriteNew is Write for a path that must not exist yet.
	WriteNew(path string, content []byte) error
	// Exists reports whether a file exists at path.
	Exists(path string) bool
	// Delete removes the file at path (relative to vault root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to vault root) without
	// replacing an existing file.
	Move(oldPath, newPath string) error
	// Abs resolves path (relative to vault root) to an absolute file system path.
	Abs(path string) (string, error)
}
