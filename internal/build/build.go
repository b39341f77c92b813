// Package build implements sqigl's build planner: a depth-first
// topological sort over an explicit dependency stack, that
// walks a project's source tree and produces the single ordered script
// list a fresh database must run to reach the project's declared version.
package build

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/manifest"
	"github.com/sqigl/sqigl/internal/sqiglerr"
	"github.com/sqigl/sqigl/internal/version"
)

// SQLExtension is the file extension a source directory's leaf scripts
// must carry to be picked up by the build.
const SQLExtension = ".sql"

// task is either a module directory waiting on its children, or a single
// script waiting on its sibling dependencies.
type task struct {
	isScript bool
	module   manifest.ModuleInfo
	path     string
}

func (t task) Path() string {
	if t.isScript {
		return t.path
	}
	return t.module.Path
}

// canonicalizeDepPath resolves dep, which may be relative to moduleDir or
// (if it begins with "/") relative to sourceDir, to its canonical absolute
// path, and confirms it exists.
func canonicalizeDepPath(dep, moduleDir, sourceDir string) (string, error) {
	var noncanonical string
	if filepath.IsAbs(dep) {
		noncanonical = filepath.Join(sourceDir, strings.TrimPrefix(dep, string(filepath.Separator)))
	} else {
		noncanonical = filepath.Join(moduleDir, dep)
	}

	path, err := filepath.EvalSymlinks(noncanonical)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &sqiglerr.DependencyDoesNotExist{Module: moduleDir, Dep: noncanonical}
		}
		return "", err
	}

	rel, err := filepath.Rel(sourceDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", &sqiglerr.DependencyOutsideRoot{Module: moduleDir, Dep: path}
	}
	return path, nil
}

// depModulePath returns the module directory a dependency path belongs to:
// itself, if it is already a directory, otherwise its parent.
func depModulePath(dep string) string {
	if info, err := os.Stat(dep); err == nil && info.IsDir() {
		return dep
	}
	return filepath.Dir(dep)
}

func cycleFrom(stack []task, start int, root string) error {
	cyclePath := make([]string, 0, len(stack)-start)
	for _, t := range stack[start:] {
		cyclePath = append(cyclePath, t.Path())
	}
	return &sqiglerr.DependencyCycle{Root: root, CyclePath: cyclePath}
}

func pushModule(path string, stack *[]task, completed map[string]struct{}, root string) error {
	log.Trace().Str("module", path).Msg("scheduling module dependency")
	for i, t := range *stack {
		if t.Path() == path {
			return cycleFrom(*stack, i, root)
		}
	}
	mod, err := manifest.OpenModule(path)
	if err != nil {
		return err
	}
	*stack = append(*stack, task{module: mod})
	return nil
}

func pushScript(path string, stack *[]task, root string) error {
	log.Trace().Str("script", path).Msg("scheduling script dependency")
	for i, t := range *stack {
		if t.Path() == path {
			return cycleFrom(*stack, i, root)
		}
	}
	*stack = append(*stack, task{isScript: true, path: path})
	return nil
}

func deferModule(path string, deferStack *[]string, completed map[string]struct{}) {
	if _, done := completed[path]; !done {
		log.Trace().Str("module", path).Msg("deferring submodule")
		*deferStack = append(*deferStack, path)
	}
}

func getScriptDeps(path string, module manifest.ModuleInfo) []string {
	name := filepath.Base(path)
	for _, script := range module.Scripts {
		if script.Script == name {
			return script.Dependencies
		}
	}
	return nil
}

// processModuleTask advances a module task by one step, returning true
// once the module has no more unprocessed children.
func processModuleTask(
	module manifest.ModuleInfo,
	dependStack *[]task,
	deferStack *[]string,
	sourceDir string,
	completed map[string]struct{},
) (bool, error) {
	parent := filepath.Dir(module.Path)
	if strings.HasPrefix(parent, sourceDir) {
		if _, done := completed[parent]; !done {
			if err := pushModule(parent, dependStack, completed, sourceDir); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	for _, dep := range module.Module.Dependencies {
		depPath, err := canonicalizeDepPath(dep, module.Path, sourceDir)
		if err != nil {
			return false, err
		}
		depModule := depModulePath(depPath)
		if _, done := completed[depModule]; done {
			continue
		} else if depModule == module.Path {
			log.Warn().Str("module", depModule).Msg("module depends on itself or one of its own scripts; ignored")
		} else if !strings.HasPrefix(depModule, sourceDir) {
			return false, &sqiglerr.DependencyOutsideRoot{Module: module.Path, Dep: depPath}
		} else {
			if err := pushModule(depModule, dependStack, completed, sourceDir); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	for _, script := range module.Scripts {
		for _, dep := range script.Dependencies {
			depPath, err := canonicalizeDepPath(dep, module.Path, sourceDir)
			if err != nil {
				return false, err
			}
			depModule := depModulePath(depPath)
			if _, done := completed[depModule]; done {
				continue
			}
			if !strings.HasPrefix(depModule, sourceDir) {
				return false, &sqiglerr.DependencyOutsideRoot{Module: module.Path, Dep: depPath}
			} else if depModule != module.Path {
				if err := pushModule(depModule, dependStack, completed, sourceDir); err != nil {
					return false, err
				}
				return false, nil
			}
		}
	}

	entries, err := os.ReadDir(module.Path)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		child := filepath.Join(module.Path, entry.Name())
		if _, done := completed[child]; done {
			continue
		}
		if entry.IsDir() {
			deferModule(child, deferStack, completed)
		} else if strings.EqualFold(filepath.Ext(entry.Name()), SQLExtension) {
			if err := pushScript(child, dependStack, sourceDir); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	return true, nil
}

// processScriptTask advances a script task by one step, returning true
// once every sibling dependency it names has already been completed.
func processScriptTask(path string, dependStack *[]task, sourceDir string, completed map[string]struct{}) (bool, error) {
	modulePath := filepath.Dir(path)
	module, err := manifest.OpenModule(modulePath)
	if err != nil {
		return false, err
	}
	for _, dep := range getScriptDeps(path, module) {
		depPath, err := canonicalizeDepPath(dep, modulePath, sourceDir)
		if err != nil {
			return false, err
		}
		if _, done := completed[depPath]; !done {
			if !strings.EqualFold(filepath.Ext(dep), SQLExtension) {
				return false, &sqiglerr.DependencyIllegal{Module: module.Path, Dep: dep}
			}
			if err := pushScript(depPath, dependStack, sourceDir); err != nil {
				return false, err
			}
			return false, nil
		}
	}
	return true, nil
}

// BuildProject topologically sorts a project's source tree and returns the
// resulting BuildArtifact. A project with no source directory at all
// builds to an empty artifact rather than an error.
func BuildProject(info manifest.ProjectInfo) (*BuildArtifact, error) {
	log.Info().Str("title", info.Project.Title).Str("version", info.Project.Version.String()).Msg("building")

	scripts := make([]string, 0, 32)
	dependStack := make([]task, 0, 8)
	deferStack := make([]string, 0, 8)
	completed := map[string]struct{}{}

	sourceDir := info.SourceDir()
	if _, err := os.Stat(sourceDir); err != nil {
		log.Warn().Msg("no source directory found")
		log.Info().Msg("build complete")
		return newBuildArtifact(scripts, info), nil
	}

	if err := pushModule(sourceDir, &dependStack, completed, sourceDir); err != nil {
		return nil, err
	}

	for len(dependStack) > 0 || len(deferStack) > 0 {
		if len(dependStack) == 0 {
			for len(deferStack) > 0 {
				next := deferStack[len(deferStack)-1]
				deferStack = deferStack[:len(deferStack)-1]
				if _, done := completed[next]; !done {
					if err := pushModule(next, &dependStack, completed, sourceDir); err != nil {
						return nil, err
					}
					break
				}
			}
		}
		if len(dependStack) == 0 {
			break
		}

		current := dependStack[len(dependStack)-1]
		var done bool
		var err error
		if current.isScript {
			done, err = processScriptTask(current.path, &dependStack, sourceDir, completed)
		} else {
			done, err = processModuleTask(current.module, &dependStack, &deferStack, sourceDir, completed)
		}
		if err != nil {
			return nil, err
		}
		if !done {
			continue
		}

		top := dependStack[len(dependStack)-1]
		dependStack = dependStack[:len(dependStack)-1]
		if top.isScript {
			scripts = append(scripts, top.path)
		}
		completed[top.Path()] = struct{}{}
	}

	log.Info().Msg("build complete")
	return newBuildArtifact(scripts, info), nil
}

// BuildArtifact is the topologically sorted script list produced by a
// build, together with enough project metadata to render its header and
// report its compatibility.
type BuildArtifact struct {
	scripts   []string
	version   *version.Version
	sourceDir string
	title     string
}

func newBuildArtifact(scripts []string, info manifest.ProjectInfo) *BuildArtifact {
	return &BuildArtifact{
		scripts:   scripts,
		version:   info.Project.Version,
		sourceDir: info.SourceDir(),
		title:     info.Project.Title,
	}
}

// SetVersion overrides the version this artifact reports installing,
// independent of the project manifest it was built from.
func (b *BuildArtifact) SetVersion(v *version.Version) {
	b.version = v
}

// Compatible reports true only for the empty database: a build is always
// a migration from scratch.
func (b *BuildArtifact) Compatible(v *version.Version) bool {
	return version.FromEmpty().Matches(v)
}

// Version is the version this build installs.
func (b *BuildArtifact) Version() *version.Version {
	return b.version
}

// Spec reports that a build requires the empty database and produces
// b.Version().
func (b *BuildArtifact) Spec() (version.Req, *version.Version) {
	return version.FromEmpty(), b.version
}

// Scripts streams the header comment followed by every script in build
// order, each preceded by a comment naming its path relative to the
// source directory, and reports the SHA-256 content id of everything
// streamed.
func (b *BuildArtifact) Scripts(consumer artifact.ScriptConsumer) (artifact.ContentId, error) {
	h := sha256.New()

	header := fmt.Sprintf("-- [ %s %s ]\n\n", strings.TrimSpace(b.title), b.version)
	h.Write([]byte(header))
	if err := consumer.Accept(header); err != nil {
		return artifact.ContentId{}, err
	}

	lastIdx := len(b.scripts) - 1
	for idx, script := range b.scripts {
		rel, err := filepath.Rel(b.sourceDir, script)
		if err != nil {
			return artifact.ContentId{}, artifact.IOError(err)
		}

		var buf bytes.Buffer
		fmt.Fprintf(&buf, "-- [ %s ]\n\n", rel)

		content, err := os.ReadFile(script)
		if err != nil {
			return artifact.ContentId{}, artifact.IOError(err)
		}
		buf.Write(bytes.TrimSpace(content))
		if idx != lastIdx {
			buf.WriteString("\n\n")
		} else {
			buf.WriteString("\n")
		}

		batch := buf.String()
		h.Write([]byte(batch))
		if err := consumer.Accept(batch); err != nil {
			return artifact.ContentId{}, err
		}
	}

	var id artifact.ContentId
	copy(id[:], h.Sum(nil))
	if err := consumer.Commit(id); err != nil {
		return artifact.ContentId{}, err
	}
	return id, nil
}
