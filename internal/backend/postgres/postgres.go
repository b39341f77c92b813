// Package postgres implements the Postgres backend.Driver: a single
// pgx.Conn, row-lock serialized transactions, and the sqigl_internal
// tracking schema (artifact, history, state) that records every applied
// migration as a linked list rooted at state.head.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgpassfile"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/tracelog"
	pgxzerolog "github.com/jackc/pgx-zerolog"
	"github.com/rs/zerolog/log"

	sqiglbackend "github.com/sqigl/sqigl/internal/backend"
	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/config"
	"github.com/sqigl/sqigl/internal/manifest"
	"github.com/sqigl/sqigl/internal/sqiglerr"
	"github.com/sqigl/sqigl/internal/version"
)

// Environment variables libpq itself recognizes, consulted before a
// project's own sqigl.toml configuration.
// https://www.postgresql.org/docs/current/libpq-envars.html
const (
	HostnameEnvVar    = "PGHOST"
	PortEnvVar        = "PGPORT"
	DatabaseEnvVar    = "PGDATABASE"
	UsernameEnvVar    = "PGUSER"
	PasswordEnvVar    = "PGPASSWORD"
	CertificateEnvVar = "PGROOTCERT"
)

// Unofficial timeout knobs, expressed in seconds (fractions allowed),
// applied per transaction.
const (
	StatementTimeoutEnvVar   = "PGSTATEMENT_TIMEOUT"
	TransactionTimeoutEnvVar = "PGTRANSACTION_TIMEOUT"
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

//go:embed sql/supports_transaction_timeout.sql
var supportsTransactionTimeoutSQL string

// SqiglVersion is embedded into every tracking schema this binary installs.
const SqiglVersion = "0.1.0"

// Backend is the Postgres backend.Driver. It holds exactly one
// connection: sqigl relies on that to make the "select ... for update"
// row lock in Apply/Check actually serialize concurrent invocations
// rather than racing across pooled connections.
type Backend struct {
	conn          *pgx.Conn
	config        *pgx.ConnConfig
	stmtTimeoutMS *int
	txTimeoutMS   *int
}

// New connects using config directly, with no credential resolution.
func New(ctx context.Context, config *pgx.ConnConfig, stmtTimeoutMS, txTimeoutMS *int) (*Backend, error) {
	config.Tracer = &tracelog.TraceLog{
		Logger:   pgxzerolog.NewLogger(log.Logger),
		LogLevel: tracelog.LogLevelWarn,
	}
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Backend{conn: conn, config: config, stmtTimeoutMS: stmtTimeoutMS, txTimeoutMS: txTimeoutMS}, nil
}

// Dial resolves connection parameters for db the way sqigl always does:
// libpq-style environment variables take precedence over the project's
// sqigl.toml, and if no password is supplied anywhere, credentials are
// looked up in the user's ~/.pgpass file.
func Dial(ctx context.Context, db manifest.PostgresDatabase) (*Backend, error) {
	hostname := firstNonEmpty(os.Getenv(HostnameEnvVar), db.Hostname)
	database := firstNonEmpty(os.Getenv(DatabaseEnvVar), db.Database)
	username := firstNonEmpty(os.Getenv(UsernameEnvVar), db.Username)
	password := os.Getenv(PasswordEnvVar)

	port := db.Port
	if p := os.Getenv(PortEnvVar); p != "" {
		parsed, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("could not parse %s: %w", PortEnvVar, err)
		}
		port = uint16(parsed)
	}

	stmtTimeoutMS, err := timeoutMillis(StatementTimeoutEnvVar)
	if err != nil {
		return nil, err
	}
	if stmtTimeoutMS == nil {
		if cfg, cfgErr := config.Load(); cfgErr == nil && cfg.DefaultStatementTimeoutMS > 0 {
			floor := cfg.DefaultStatementTimeoutMS
			stmtTimeoutMS = &floor
		}
	}
	txTimeoutMS, err := timeoutMillis(TransactionTimeoutEnvVar)
	if err != nil {
		return nil, err
	}

	if password != "" {
		if hostname == "" || port == 0 || database == "" || username == "" {
			return nil, errors.New("could not connect to database: hostname, port, database and username must all be supplied")
		}
		config, err := pgx.ParseConfig(fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
			hostname, port, database, username, password))
		if err != nil {
			return nil, err
		}
		return New(ctx, config, stmtTimeoutMS, txTimeoutMS)
	}

	pgpassPath, ok := os.LookupEnv("PGPASSFILE")
	if !ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.New("could not connect to database: credentials were not supplied, and no home directory to search for .pgpass")
		}
		pgpassPath = home + "/.pgpass"
	}
	passfile, err := pgpassfile.ReadPassfile(pgpassPath)
	if err != nil {
		return nil, errors.New("could not connect to database: credentials were not supplied, and .pgpass could not be read")
	}

	portStr := "*"
	if port != 0 {
		portStr = strconv.Itoa(int(port))
	}
	hostnameQuery := firstNonEmpty(hostname, "*")
	databaseQuery := firstNonEmpty(database, "*")
	usernameQuery := firstNonEmpty(username, "*")
	entry := passfile.FindEntry(hostnameQuery, portStr, databaseQuery, usernameQuery)
	if entry == nil {
		return nil, errors.New("could not connect to database: credentials were not found in pgpass file")
	}

	config, err := pgx.ParseConfig(fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s",
		entry.Hostname, entry.Port, entry.Database, entry.Username, entry.Password))
	if err != nil {
		return nil, err
	}
	return New(ctx, config, stmtTimeoutMS, txTimeoutMS)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func timeoutMillis(envvar string) (*int, error) {
	raw := os.Getenv(envvar)
	if raw == "" {
		return nil, nil
	}
	seconds, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", envvar, err)
	}
	if seconds < 0 {
		return nil, fmt.Errorf("could not parse %s: must be >= 0", envvar)
	}
	ms := int(seconds * 1000)
	return &ms, nil
}

// openTransaction begins a transaction and applies the statement and
// transaction timeouts as transaction-local settings, so they never leak
// outside this one migration.
func (b *Backend) openTransaction(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if b.stmtTimeoutMS != nil {
		log.Debug().Int("ms", *b.stmtTimeoutMS).Msg("setting statement timeout")
		if _, err := tx.Exec(ctx, fmt.Sprintf("set local statement_timeout = %d", *b.stmtTimeoutMS)); err != nil {
			return nil, err
		}
	}
	if b.txTimeoutMS != nil {
		log.Debug().Int("ms", *b.txTimeoutMS).Msg("setting transaction timeout")
		if _, err := tx.Exec(ctx, fmt.Sprintf("set local transaction_timeout = %d", *b.txTimeoutMS)); err != nil {
			var supports bool
			_ = tx.QueryRow(ctx, supportsTransactionTimeoutSQL).Scan(&supports)
			if !supports {
				log.Error().Msg("transaction_timeout was specified, but this database doesn't appear to support it; it was added in Postgres 17")
			}
			return nil, err
		}
	}
	return tx, nil
}

func getState(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}) (sqiglbackend.SqiglState, error) {
	var projectVersionStr *string
	var sqiglVersionStr string
	if err := q.QueryRow(ctx, selectStateSQL).Scan(&projectVersionStr, &sqiglVersionStr); err != nil {
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

// Install creates the sqigl_internal tracking schema.
func (b *Backend) Install(ctx context.Context) (sqiglbackend.SqiglState, error) {
	log.Info().Msg("installing sqigl onto database")
	tx, err := b.conn.Begin(ctx)
	if err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	if _, err := tx.Exec(ctx, initializeStateSQL, SqiglVersion); err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	state, err := getState(ctx, tx)
	if err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return sqiglbackend.SqiglState{}, err
	}
	return state, nil
}

// Open reports the database's current state, installing the tracking
// schema first if this is its first time seeing sqigl.
func (b *Backend) Open(ctx context.Context) (sqiglbackend.SqiglState, error) {
	log.Info().Msg("opening database")
	state, err := getState(ctx, b.conn)
	if err != nil {
		log.Warn().Msg("sqigl is not installed on this database; installing")
		state, err = b.Install(ctx)
		if err != nil {
			return sqiglbackend.SqiglState{}, err
		}
	}
	log.Debug().Str("project_version", state.ProjectVersion.String()).Str("sqigl_version", state.SqiglVersion.String()).Msg("database state")
	return state, nil
}

type txConsumer struct {
	ctx     context.Context
	version *version.Version
	tx      pgx.Tx
}

func (c *txConsumer) Accept(script string) error {
	log.Trace().Msg("running a script")
	if _, err := c.tx.Exec(c.ctx, script); err != nil {
		return artifact.DatabaseError(err)
	}
	return nil
}

func (c *txConsumer) Commit(id artifact.ContentId) error {
	log.Trace().Msg("committing artifact")
	var artifactPK int64
	if err := c.tx.QueryRow(c.ctx, getArtifactByIDSQL, id[:]).Scan(&artifactPK); err != nil {
		return artifact.DatabaseError(err)
	}

	var prevPK *int64
	if err := c.tx.QueryRow(c.ctx, "select head from sqigl_internal.state").Scan(&prevPK); err != nil {
		return artifact.DatabaseError(err)
	}

	var headPK int64
	if err := c.tx.QueryRow(c.ctx, appendHistorySQL, prevPK, artifactPK, c.version.String()).Scan(&headPK); err != nil {
		return artifact.DatabaseError(err)
	}

	tag, err := c.tx.Exec(c.ctx, "update sqigl_internal.state set head = $1", headPK)
	if err != nil {
		return artifact.DatabaseError(err)
	}
	if tag.RowsAffected() != 1 {
		return artifact.DatabaseError(fmt.Errorf("expected to update exactly one state row, updated %d", tag.RowsAffected()))
	}

	if err := c.tx.Commit(c.ctx); err != nil {
		return artifact.DatabaseError(err)
	}
	log.Debug().Msg("artifact transaction committed")
	return nil
}

// Apply runs a's scripts under a row-locked transaction, after confirming
// a is compatible with the database's current project version, and
// records the applied artifact in the history chain.
func (b *Backend) Apply(ctx context.Context, a artifact.Artifact) (sqiglbackend.SqiglState, error) {
	log.Info().Msg("applying artifact")
	log.Debug().Msg("opening artifact transaction")
	tx, err := b.openTransaction(ctx)
	if err != nil {
		return sqiglbackend.SqiglState{}, err
	}

	if _, err := tx.Exec(ctx, "select from sqigl_internal.state for update"); err != nil {
		tx.Rollback(ctx)
		return sqiglbackend.SqiglState{}, err
	}
	state, err := getState(ctx, tx)
	if err != nil {
		tx.Rollback(ctx)
		return sqiglbackend.SqiglState{}, err
	}
	if !a.Compatible(state.ProjectVersion) {
		log.Error().Msg("migration aborted: incompatible")
		tx.Rollback(ctx)
		return sqiglbackend.SqiglState{}, artifact.Incompatible()
	}

	consumer := &txConsumer{ctx: ctx, version: a.Version(), tx: tx}
	if _, err := a.Scripts(consumer); err != nil {
		tx.Rollback(ctx)
		return sqiglbackend.SqiglState{}, err
	}

	log.Info().Msg("migration applied")
	return getState(ctx, b.conn)
}

type checkConsumer struct {
	ctx context.Context
	tx  pgx.Tx
}

func (c *checkConsumer) Accept(script string) error {
	log.Trace().Msg("running a script")
	if _, err := c.tx.Exec(c.ctx, script); err != nil {
		return artifact.DatabaseError(err)
	}
	return nil
}

func (c *checkConsumer) Commit(artifact.ContentId) error {
	log.Trace().Msg("done checking, rolling back")
	if err := c.tx.Rollback(c.ctx); err != nil {
		return artifact.DatabaseError(err)
	}
	return nil
}

// Check runs a's scripts inside a transaction that is always rolled back,
// so the database is left untouched either way.
func (b *Backend) Check(ctx context.Context, a artifact.Artifact) error {
	log.Info().Msg("checking artifact")

	if _, err := b.Open(ctx); err != nil {
		return err
	}

	tx, err := b.openTransaction(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "select from sqigl_internal.state for update"); err != nil {
		tx.Rollback(ctx)
		return err
	}
	state, err := getState(ctx, tx)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}
	if !a.Compatible(state.ProjectVersion) {
		log.Error().Msg("migration aborted: incompatible")
		tx.Rollback(ctx)
		return artifact.Incompatible()
	}

	consumer := &checkConsumer{ctx: ctx, tx: tx}
	if _, err := a.Scripts(consumer); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return nil
}

// GenerateMigration is not implemented for Postgres: diffing two live
// schemas needs a real DDL differ (pg_dump --schema-only plus a SQL-aware
// comparison), which is out of scope here. SQLite's GenerateMigration
// covers the spec's one required implementation.
func (b *Backend) GenerateMigration(ctx context.Context, from, to artifact.Artifact) (artifact.Artifact, error) {
	return nil, &sqiglerr.Unimplemented{Operation: "postgres generate-migration"}
}
