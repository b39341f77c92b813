// Package fsutil provides the small set of filesystem primitives every
// manifest and artifact writer in sqigl relies on: atomic file replacement,
// so a process crash or concurrent reader never observes a half-written
// manifest or migration script.
package fsutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/sqigl/sqigl/internal/artifact"
)

// ReplaceFile writes content to path atomically: it is written in full to
// a scratch file in a freshly created temporary directory, fsynced, and
// then renamed over path. Readers of path never observe a partial write.
func ReplaceFile(content string, path string) error {
	tmpDir, err := os.MkdirTemp("", "sqigl-"+uuid.NewString())
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, "tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// ReplaceArtifact streams a's scripts into a scratch file and atomically
// renames it over path, returning the artifact's content id.
func ReplaceArtifact(a artifact.Artifact, path string) (artifact.ContentId, error) {
	tmpDir, err := os.MkdirTemp("", "sqigl-"+uuid.NewString())
	if err != nil {
		return artifact.ContentId{}, err
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, "tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return artifact.ContentId{}, err
	}

	id, err := artifact.WriteTo(a, f)
	if err != nil {
		f.Close()
		return artifact.ContentId{}, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return artifact.ContentId{}, err
	}
	if err := f.Close(); err != nil {
		return artifact.ContentId{}, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return artifact.ContentId{}, err
	}
	return id, nil
}
