// Package version defines the semantic-version helpers sqigl builds
// everything else on top of: the two distinguished versions (the empty
// database and a fresh project's starting point), version normalization for
// artifact-directory names, and the small family of exact-match version
// requirements sqigl actually needs.
//
// sqigl never parses an arbitrary semver range like "^1.2" or ">=1.0 <2.0".
// Every requirement it produces is one of three shapes: "from empty",
// "from this minor line", or "from this exact patch" — always constructed
// from a concrete Version, never typed in by a user. Masterminds/semver/v3
// is used only for the Version type itself (parsing, string form,
// comparison); VersionReq below is hand-rolled so its matching rules stay
// exactly the ones this domain requires.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a parsed MAJOR.MINOR.PATCH[-PRE][+BUILD] value.
type Version = semver.Version

// Parse parses s as a semantic version.
func Parse(s string) (*Version, error) {
	return semver.NewVersion(s)
}

// Empty returns the distinguished version 0.0.0, denoting an empty database.
func Empty() *Version {
	v, err := semver.NewVersion("0.0.0")
	if err != nil {
		panic(err)
	}
	return v
}

// IsEmpty reports whether v is the reserved 0.0.0 version.
func IsEmpty(v *Version) bool {
	return v.Equal(Empty())
}

// InitialProject returns the distinguished version 0.1.0, the version a
// freshly created project starts at.
func InitialProject() *Version {
	v, err := semver.NewVersion("0.1.0")
	if err != nil {
		panic(err)
	}
	return v
}

// Normalize returns version with its patch component zeroed and its build
// metadata dropped, preserving major, minor and prerelease. This is the
// value used to name artifact directories (MAJOR.MINOR.0[-PRE]).
func Normalize(v *Version) *Version {
	s := fmt.Sprintf("%d.%d.0", v.Major(), v.Minor())
	if pre := v.Prerelease(); pre != "" {
		s += "-" + pre
	}
	n, err := semver.NewVersion(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Req is a version requirement. sqigl requirements are always exact
// matches against a major and minor version, an optional patch, and a
// prerelease tag carried over from the version the requirement was derived
// from — never an open range.
type Req struct {
	major, minor int64
	patch        *int64
	pre          string
}

// FromEmpty returns the requirement "=0.0.0": matches only the empty
// database version.
func FromEmpty() Req {
	return Req{major: 0, minor: 0, patch: int64Ptr(0)}
}

// FromMinor returns the requirement "=MAJOR.MINOR" derived from v: matches
// any patch version within v's minor line, carrying v's prerelease tag.
func FromMinor(v *Version) Req {
	return Req{major: int64(v.Major()), minor: int64(v.Minor()), pre: v.Prerelease()}
}

// FromPatch returns the requirement "=MAJOR.MINOR.PATCH" derived from v:
// matches only v's exact major/minor/patch, carrying v's prerelease tag.
func FromPatch(v *Version) Req {
	patch := int64(v.Patch())
	return Req{major: int64(v.Major()), minor: int64(v.Minor()), patch: &patch, pre: v.Prerelease()}
}

// Matches reports whether v satisfies req.
func (r Req) Matches(v *Version) bool {
	if int64(v.Major()) != r.major || int64(v.Minor()) != r.minor {
		return false
	}
	if r.patch != nil && int64(v.Patch()) != *r.patch {
		return false
	}
	return v.Prerelease() == r.pre
}

// String renders the requirement in sqigl.toml's "=a.b[.c][-pre]" form.
func (r Req) String() string {
	s := fmt.Sprintf("=%d.%d", r.major, r.minor)
	if r.patch != nil {
		s += fmt.Sprintf(".%d", *r.patch)
	}
	if r.pre != "" {
		s += "-" + r.pre
	}
	return s
}

// MarshalText implements encoding.TextMarshaler so a Req can be written
// directly into a TOML document.
func (r Req) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, parsing the
// "=a.b[.c][-pre]" shapes this package produces.
func (r *Req) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) == 0 || s[0] != '=' {
		return fmt.Errorf("version requirement %q: must begin with '='", s)
	}
	s = s[1:]
	pre := ""
	if i := indexByte(s, '-'); i >= 0 {
		pre = s[i+1:]
		s = s[:i]
	}
	var major, minor, patch int64
	var hasPatch bool
	n, err := fmt.Sscanf(s, "%d.%d.%d", &major, &minor, &patch)
	switch {
	case err == nil && n == 3:
		hasPatch = true
	default:
		n, err = fmt.Sscanf(s, "%d.%d", &major, &minor)
		if err != nil || n != 2 {
			return fmt.Errorf("version requirement %q: malformed", string(text))
		}
	}
	*r = Req{major: major, minor: minor, pre: pre}
	if hasPatch {
		r.patch = &patch
	}
	return nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func int64Ptr(v int64) *int64 { return &v }
