package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sqigl/sqigl/internal/sqiglerr"
)

// Module is a source module's dependencies on other modules, given as
// paths relative to this module's directory, or, when they begin with
// "/", relative to the project's source directory.
type Module struct {
	Dependencies []string `toml:"dependencies,omitempty"`
}

// Script is one SQL script belonging to a module, plus its dependencies on
// sibling scripts (or, through a module dependency, on other modules).
type Script struct {
	Script       string   `toml:"script"`
	Dependencies []string `toml:"dependencies,omitempty"`
}

// ModuleManifest is the parsed content of a module's sqigl.toml.
type ModuleManifest struct {
	Module  Module   `toml:"module"`
	Scripts []Script `toml:"scripts"`
}

// ModuleInfo is a module manifest together with the canonical directory it
// was loaded from. A directory with no sqigl.toml is a module with no
// dependencies and no declared scripts, so every directory under a
// project's source tree is implicitly a module.
type ModuleInfo struct {
	Module  Module
	Scripts []Script
	Path    string
}

// OpenModule loads the module manifest in directory, or an empty one if
// directory has no sqigl.toml. directory must be an absolute, canonical
// path.
func OpenModule(directory string) (ModuleInfo, error) {
	manifestPath := filepath.Join(directory, ManifestFilename)
	if _, err := os.Stat(manifestPath); err != nil {
		return ModuleInfo{Path: directory}, nil
	}

	manifest, err := readTOML[ModuleManifest](manifestPath)
	if err != nil {
		return ModuleInfo{}, err
	}
	for _, script := range manifest.Scripts {
		if strings.Contains(script.Script, "/") {
			return ModuleInfo{}, &sqiglerr.InvalidScriptName{Script: script.Script}
		}
	}
	return ModuleInfo{Module: manifest.Module, Scripts: manifest.Scripts, Path: directory}, nil
}
