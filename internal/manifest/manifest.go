// Package manifest reads and writes the sqigl.toml documents that describe
// a project, a module, and an artifact directory. Reads decode into plain
// structs with pelletier/go-toml/v2; writes that must preserve whatever a
// human already put in the file (project version bumps, migration table
// entries) round-trip through a generic map so unrelated keys survive.
package manifest

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Filenames and directory layout shared by every manifest kind.
const (
	ManifestFilename   = "sqigl.toml"
	SourceDirectory    = "src"
	ArtifactsDirectory = "artifacts"
)

// ReadTomlError reports why a manifest file could not be read.
type ReadTomlError struct {
	Path string
	Err  error
	// Invalid is true when the file was read but could not be decoded (a
	// TOML syntax error or a document of the wrong shape), as opposed to an
	// I/O failure.
	Invalid bool
}

func (e *ReadTomlError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ReadTomlError) Unwrap() error { return e.Err }

// readTOML decodes the TOML document at path into a fresh T.
func readTOML[T any](path string) (T, error) {
	var out T
	content, err := os.ReadFile(path)
	if err != nil {
		return out, &ReadTomlError{Path: path, Err: err}
	}
	if err := toml.Unmarshal(content, &out); err != nil {
		return out, &ReadTomlError{Path: path, Err: err, Invalid: true}
	}
	return out, nil
}

// maybeReadTOML decodes path into a fresh T only if the document contains
// key at its top level; otherwise it returns (nil, nil).
func maybeReadTOML[T any](path string, key string) (*T, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadTomlError{Path: path, Err: err}
	}
	var probe map[string]any
	if err := toml.Unmarshal(content, &probe); err != nil {
		return nil, &ReadTomlError{Path: path, Err: err, Invalid: true}
	}
	if _, ok := probe[key]; !ok {
		return nil, nil
	}
	var out T
	if err := toml.Unmarshal(content, &out); err != nil {
		return nil, &ReadTomlError{Path: path, Err: err, Invalid: true}
	}
	return &out, nil
}
