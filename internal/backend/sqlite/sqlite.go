// Package sqlite implements the SQLite backend.Driver on top of
// modernc.org/sqlite, a pure-Go driver that needs no cgo toolchain. A
// *Backend pins its *sql.DB to a single open connection, so "BEGIN
// EXCLUSIVE" genuinely serializes concurrent sqigl invocations against the
// same database file the way a single pgx.Conn does for Postgres.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog/log"

	"github.com/sqigl/sqigl/internal/artifact"
	sqiglbackend "github.com/sqigl/sqigl/internal/backend"
	"github.com/sqigl/sqigl/internal/manifest"
	"github.com/sqigl/sqigl/internal/version"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/initialize_state.sql
var initializeStateSQL string

//go:embed sql/select_state.sql
var selectStateSQL string

//go:embed sql/get_artifact_by_id.sql
var getArtifactByIDSQL string

//go:embed sql/append_history.sql
var appendHistorySQL string

//go:embed sql/table_names.sql
var tableNamesSQL string

//go:embed sql/get_table_code.sql
var getTableCodeSQL string

// SqiglVersion is embedded into every tracking schema this binary installs.
const SqiglVersion = "0.1.0"

// Backend is the SQLite backend.Driver.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database file at path. An
// empty path or ":memory:" opens a private in-memory database, useful for
// generate-migration's scratch schemas.
func Open(path string) (*Backend, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection makes BEGIN EXCLUSIVE actually exclusive across
	// this process; a pool would let a second goroutine grab a second
	// connection and race past it.
	db.SetMaxOpenConns(1)
	return &Backend{db: db}, nil
}

// Dial opens the database a project's sqigl.toml names. An empty path
// opens a private in-memory database; a relative path is resolved against
// root, the project's directory.
func Dial(root string, db manifest.SqliteDatabase) (*Backend, error) {
	if db.Path == "" {
		return Open(":memory:")
	}
	path := db.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return Open(path)
}

// queryRower is satisfied by both *sql.DB and *sql.Tx, so getState can run
// against either.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getState(ctx context.Context, q queryRower) (sqiglbackend.SqiglState, error) {
	var projectVersionStr *string
	var sqiglVersionStr string
	if err := q.QueryRowContext(ctx, selectStateSQL).Scan(&projectVersionStr, &sqiglVersionStr); err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	projectVersion := version.Empty()
	if projectVersionStr != nil {
		v, err := version.Parse(*projectVersionStr)
		if err != nil {
			return sqiglbackend.SqiglState{}, fmt.Errorf("failed to parse project_version: %w", err)
		}
		projectVersion = v
	}
	sqiglVersion, err := version.Parse(sqiglVersionStr)
	if err != nil {
		return sqiglbackend.SqiglState{}, fmt.Errorf("failed to parse sqigl_version: %w", err)
	}
	return sqiglbackend.SqiglState{ProjectVersion: projectVersion, SqiglVersion: sqiglVersion}, nil
}

// Install creates the tracking tables.
func (b *Backend) Install(ctx context.Context) (sqiglbackend.SqiglState, error) {
	log.Info().Msg("installing sqigl onto database")
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	if _, err := tx.ExecContext(ctx, initializeStateSQL, SqiglVersion); err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	state, err := getState(ctx, tx)
	if err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	if err := tx.Commit(); err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	return state, nil
}

// Open reports the database's current state, installing the tracking
// schema first if this is its first time seeing sqigl.
func (b *Backend) Open(ctx context.Context) (sqiglbackend.SqiglState, error) {
	state, err := getState(ctx, b.db)
	if err == nil {
		return state, nil
	}
	log.Warn().Msg("sqigl is not installed on this database; installing")
	return b.Install(ctx)
}

// beginExclusive issues a raw BEGIN EXCLUSIVE on a pinned connection,
// bypassing database/sql's own transaction isolation knobs, which have no
// SQLite EXCLUSIVE level.
func (b *Backend) beginExclusive(ctx context.Context) (*sql.Conn, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

type applyConsumer struct {
	ctx     context.Context
	version *version.Version
	conn    *sql.Conn
}

func (c *applyConsumer) Accept(script string) error {
	log.Trace().Msg("running a script")
	if _, err := c.conn.ExecContext(c.ctx, script); err != nil {
		return artifact.DatabaseError(err)
	}
	return nil
}

func (c *applyConsumer) Commit(id artifact.ContentId) error {
	log.Debug().Msg("committing migration")
	defer c.conn.Close()

	var artifactPK int64
	if err := c.conn.QueryRowContext(c.ctx, getArtifactByIDSQL, id[:]).Scan(&artifactPK); err != nil {
		c.conn.ExecContext(c.ctx, "ROLLBACK")
		return artifact.DatabaseError(err)
	}

	var prevPK *int64
	if err := c.conn.QueryRowContext(c.ctx, "select head from sqigl_internal_state").Scan(&prevPK); err != nil {
		c.conn.ExecContext(c.ctx, "ROLLBACK")
		return artifact.DatabaseError(err)
	}

	var headPK int64
	if err := c.conn.QueryRowContext(c.ctx, appendHistorySQL, prevPK, artifactPK, c.version.String()).Scan(&headPK); err != nil {
		c.conn.ExecContext(c.ctx, "ROLLBACK")
		return artifact.DatabaseError(err)
	}

	if _, err := c.conn.ExecContext(c.ctx, "update sqigl_internal_state set head = ?1", headPK); err != nil {
		c.conn.ExecContext(c.ctx, "ROLLBACK")
		return artifact.DatabaseError(err)
	}

	if _, err := c.conn.ExecContext(c.ctx, "COMMIT"); err != nil {
		return artifact.DatabaseError(err)
	}
	log.Debug().Msg("migration committed")
	return nil
}

// Apply runs a's scripts under an exclusive transaction, after confirming
// a is compatible with the database's current project version.
func (b *Backend) Apply(ctx context.Context, a artifact.Artifact) (sqiglbackend.SqiglState, error) {
	log.Info().Msg("applying artifact")
	log.Debug().Msg("opening artifact transaction")

	conn, err := b.beginExclusive(ctx)
	if err != nil {
		return sqiglbackend.SqiglState{}, err
	}

	state, err := getState(ctx, &connQueryRower{ctx: ctx, conn: conn})
	if err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		return sqiglbackend.SqiglState{}, err
	}
	if !a.Compatible(state.ProjectVersion) {
		log.Error().Msg("migration aborted: incompatible")
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		return sqiglbackend.SqiglState{}, artifact.Incompatible()
	}

	consumer := &applyConsumer{ctx: ctx, version: a.Version(), conn: conn}
	if _, err := a.Scripts(consumer); err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		return sqiglbackend.SqiglState{}, err
	}

	return getState(ctx, b.db)
}

type checkConsumer struct {
	ctx  context.Context
	conn *sql.Conn
}

func (c *checkConsumer) Accept(script string) error {
	log.Trace().Msg("running a script")
	if _, err := c.conn.ExecContext(c.ctx, script); err != nil {
		return artifact.DatabaseError(err)
	}
	return nil
}

func (c *checkConsumer) Commit(artifact.ContentId) error {
	log.Trace().Msg("done checking, rolling back")
	defer c.conn.Close()
	if _, err := c.conn.ExecContext(c.ctx, "ROLLBACK"); err != nil {
		return artifact.DatabaseError(err)
	}
	return nil
}

// Check runs a's scripts inside a transaction that is always rolled back.
func (b *Backend) Check(ctx context.Context, a artifact.Artifact) error {
	log.Info().Msg("checking artifact")
	if _, err := b.Open(ctx); err != nil {
		return err
	}

	conn, err := b.beginExclusive(ctx)
	if err != nil {
		return err
	}
	state, err := getState(ctx, &connQueryRower{ctx: ctx, conn: conn})
	if err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		return err
	}
	if !a.Compatible(state.ProjectVersion) {
		log.Error().Msg("migration aborted: incompatible")
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		return artifact.Incompatible()
	}

	consumer := &checkConsumer{ctx: ctx, conn: conn}
	if _, err := a.Scripts(consumer); err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		return err
	}
	return nil
}

// connQueryRower adapts *sql.Conn to the queryRower interface.
type connQueryRower struct {
	ctx  context.Context
	conn *sql.Conn
}

func (c *connQueryRower) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

// GenerateMigration diffs two fresh in-memory schemas, built from from and
// to, by comparing their sqlite_master table definitions: a table present
// in from but not to is dropped; a table present in to but not from is
// created verbatim from its stored DDL. Column-level changes within an
// existing table are out of scope — author those migrations by hand.
func (b *Backend) GenerateMigration(ctx context.Context, from, to artifact.Artifact) (artifact.Artifact, error) {
	fromDB, err := Open(":memory:")
	if err != nil {
		return nil, err
	}
	defer fromDB.db.Close()
	fromScript, err := artifact.ToString(from)
	if err != nil {
		return nil, err
	}
	if _, err := fromDB.db.ExecContext(ctx, fromScript); err != nil {
		return nil, err
	}

	toDB, err := Open(":memory:")
	if err != nil {
		return nil, err
	}
	defer toDB.db.Close()
	toScript, err := artifact.ToString(to)
	if err != nil {
		return nil, err
	}
	if _, err := toDB.db.ExecContext(ctx, toScript); err != nil {
		return nil, err
	}

	statements, err := delta(ctx, fromDB.db, toDB.db)
	if err != nil {
		return nil, err
	}

	return &sqiglbackend.GeneratedMigration{
		From:       version.FromMinor(from.Version()),
		To:         to.Version(),
		Statements: statements,
	}, nil
}
