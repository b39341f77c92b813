// Package backend defines the driver protocol every sqigl storage target
// implements: install a fresh tracking schema, open and report a
// database's current state, apply an artifact under transactional
// isolation, check an artifact without committing it, and (where
// supported) generate a migration by diffing two built schemas.
package backend

import (
	"context"
	"crypto/sha256"
	"strings"

	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/version"
)

// Driver is the protocol every backend (Postgres, SQLite, ...)
// implements. Every operation is transactional and blocking: sqigl never
// runs two migrations against the same database concurrently, and a
// Driver's job is to make that true even across separate sqigl
// invocations.
type Driver interface {
	// Install creates sqigl's tracking schema on a database that has
	// never seen sqigl before, and reports its resulting state.
	Install(ctx context.Context) (SqiglState, error)

	// Open reports a database's current state, installing the tracking
	// schema first if it is missing.
	Open(ctx context.Context) (SqiglState, error)

	// Apply runs a's scripts against the database inside a single
	// transaction, after confirming a is compatible with the database's
	// current project version, and records the applied artifact in the
	// tracking schema's history.
	Apply(ctx context.Context, a artifact.Artifact) (SqiglState, error)

	// Check runs a's scripts the same way Apply does, but always rolls
	// back rather than committing — used to validate a migration without
	// mutating the database.
	Check(ctx context.Context, a artifact.Artifact) error

	// GenerateMigration builds from and to into scratch databases and
	// diffs their resulting schemas, returning the statements that would
	// carry a database at from's version to to's version. Not every
	// backend supports this.
	GenerateMigration(ctx context.Context, from, to artifact.Artifact) (artifact.Artifact, error)
}

// SqiglState is a database's current tracking state: the project version
// its most recently applied migration left it at, and the sqigl release
// that installed its tracking schema.
type SqiglState struct {
	ProjectVersion *version.Version
	SqiglVersion   *version.Version
}

// SQLStatement is one statement of a generated migration.
type SQLStatement interface {
	WriteTo(buf *strings.Builder)
}

// GeneratedMigration is the Artifact a backend's GenerateMigration
// returns: an ordered list of raw SQL statements, streamed one per line.
type GeneratedMigration struct {
	From       version.Req
	To         *version.Version
	Statements []SQLStatement
}

func (g *GeneratedMigration) Compatible(v *version.Version) bool { return g.From.Matches(v) }

func (g *GeneratedMigration) Version() *version.Version { return g.To }

func (g *GeneratedMigration) Spec() (version.Req, *version.Version) { return g.From, g.To }

func (g *GeneratedMigration) Scripts(consumer artifact.ScriptConsumer) (artifact.ContentId, error) {
	h := sha256.New()
	var buf strings.Builder
	for _, stmt := range g.Statements {
		buf.Reset()
		stmt.WriteTo(&buf)
		buf.WriteByte('\n')

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

// RawStatement is a SQLStatement that writes itself out verbatim.
type RawStatement string

func (r RawStatement) WriteTo(buf *strings.Builder) { buf.WriteString(string(r)) }
