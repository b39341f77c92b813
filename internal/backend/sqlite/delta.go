package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	sqiglbackend "github.com/sqigl/sqigl/internal/backend"
)

// dropTableStatement drops a table that existed in the from schema but not
// in the to schema.
type dropTableStatement struct {
	name string
}

func (s dropTableStatement) WriteTo(buf *strings.Builder) {
	fmt.Fprintf(buf, "DROP TABLE %s;", s.name)
}

// createTableStatement recreates a table that exists in the to schema but
// not in the from schema, using its stored DDL verbatim.
type createTableStatement struct {
	code string
}

func (s createTableStatement) WriteTo(buf *strings.Builder) {
	buf.WriteString(s.code)
	buf.WriteByte(';')
}

func getTableNames(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, tableNamesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

// delta compares the tables visible in fromDB and toDB and returns the
// statements that would bring fromDB's shape to toDB's: a DROP TABLE for
// every table fromDB has that toDB doesn't, and a verbatim CREATE TABLE for
// every table toDB has that fromDB doesn't. It does not detect column-level
// changes to a table present in both.
func delta(ctx context.Context, fromDB, toDB *sql.DB) ([]sqiglbackend.SQLStatement, error) {
	var statements []sqiglbackend.SQLStatement

	fromTables, err := getTableNames(ctx, fromDB)
	if err != nil {
		return nil, err
	}
	toTables, err := getTableNames(ctx, toDB)
	if err != nil {
		return nil, err
	}

	for name := range fromTables {
		if _, ok := toTables[name]; !ok {
			log.Info().Str("table", name).Msg("table was deleted")
			statements = append(statements, dropTableStatement{name: name})
		}
	}

	for name := range toTables {
		if _, ok := fromTables[name]; ok {
			continue
		}
		var code string
		if err := toDB.QueryRowContext(ctx, getTableCodeSQL, name).Scan(&code); err != nil {
			return nil, err
		}
		statements = append(statements, createTableStatement{code: code})
	}

	return statements, nil
}
