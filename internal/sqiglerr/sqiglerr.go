// Package sqiglerr defines the structured error kinds sqigl raises, per the
// error-kind table in spec.md §7. Each kind is a small concrete type
// implementing error (and, where it wraps an underlying cause, Unwrap), so
// callers can use errors.As to recover the kind and its fields instead of
// string-matching a message — the Go analog of the original Rust project's
// per-module thiserror enums.
package sqiglerr

import "fmt"

// DependencyOutsideRoot is raised by the build planner when a dependency
// resolves outside the source directory.
type DependencyOutsideRoot struct {
	Module string
	Dep    string
}

func (e *DependencyOutsideRoot) Error() string {
	return fmt.Sprintf("dependency %s of module %s is outside the source directory", e.Dep, e.Module)
}

// DependencyDoesNotExist is raised when a declared dependency path does not
// exist on disk.
type DependencyDoesNotExist struct {
	Module string
	Dep    string
}

func (e *DependencyDoesNotExist) Error() string {
	return fmt.Sprintf("dependency %s of module %s does not exist", e.Dep, e.Module)
}

// DependencyIllegal is raised when a script-level dependency names
// something that is neither a sibling SQL script nor (via module
// dependencies) a module.
type DependencyIllegal struct {
	Module string
	Dep    string
}

func (e *DependencyIllegal) Error() string {
	return fmt.Sprintf("dependency %s of module %s is neither a module nor a SQL script", e.Dep, e.Module)
}

// DependencyCycle is raised when the build planner would schedule a task
// already on the dependency stack. CyclePath is the stack slice from the
// first occurrence of the repeated task to the top, inclusive.
type DependencyCycle struct {
	Root      string
	CyclePath []string
}

func (e *DependencyCycle) Error() string {
	first, last := e.CyclePath[0], e.CyclePath[len(e.CyclePath)-1]
	return fmt.Sprintf("a cycle exists between %s and %s", relTo(e.Root, first), relTo(e.Root, last))
}

// Detail renders the full cycle chain, one step per line, for diagnostics.
func (e *DependencyCycle) Detail() string {
	s := ""
	for _, step := range e.CyclePath[:len(e.CyclePath)-1] {
		s += fmt.Sprintf("    %s -->\n", relTo(e.Root, step))
	}
	last := e.CyclePath[len(e.CyclePath)-1]
	first := e.CyclePath[0]
	s += fmt.Sprintf("    %s --> %s", relTo(e.Root, last), relTo(e.Root, first))
	return s
}

func relTo(root, path string) string {
	if len(path) > len(root) && path[:len(root)] == root {
		rest := path[len(root):]
		for len(rest) > 0 && rest[0] == '/' {
			rest = rest[1:]
		}
		return rest
	}
	return path
}

// ManifestNotFound is raised when no project manifest is found in a
// directory or any of its ancestors.
type ManifestNotFound struct {
	Dir string
}

func (e *ManifestNotFound) Error() string {
	return fmt.Sprintf("no project manifest was found in %s or any of its ancestors", e.Dir)
}

// InvalidProjectVersion is raised when a project manifest declares version
// 0.0.0, which is reserved for empty databases.
type InvalidProjectVersion struct{}

func (e *InvalidProjectVersion) Error() string {
	return "version 0.0.0 is reserved for empty databases"
}

// InvalidScriptName is raised when a manifest names a script containing a
// path separator.
type InvalidScriptName struct {
	Script string
}

func (e *InvalidScriptName) Error() string {
	return fmt.Sprintf("invalid script path %q: must not contain a path separator", e.Script)
}

// Incompatible is raised by a backend's apply/check when the artifact is
// not compatible with the database's current project version.
type Incompatible struct {
	ProjectVersion string
}

func (e *Incompatible) Error() string {
	return fmt.Sprintf("the artifact is incompatible with database at version %s", e.ProjectVersion)
}

// Unimplemented is raised by backend operations this spec explicitly
// leaves unimplemented (the Postgres delta generator).
type Unimplemented struct {
	Operation string
}

func (e *Unimplemented) Error() string {
	return fmt.Sprintf("%s is not implemented", e.Operation)
}

// AlreadyExists is raised when an action would overwrite an existing file
// or directory it must not clobber (a migration script, a release's
// artifact directory).
type AlreadyExists struct {
	Path string
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists", e.Path)
}

// NoSavedMigration is raised by apply-version when the migration set has no
// entry taking the database from its current version to the requested one.
type NoSavedMigration struct {
	From, To string
}

func (e *NoSavedMigration) Error() string {
	return fmt.Sprintf("no saved migration for %s -> %s", e.From, e.To)
}
