package command

import (
	"context"
	"fmt"

	"github.com/sqigl/sqigl/internal/backend"
	"github.com/sqigl/sqigl/internal/backend/postgres"
	"github.com/sqigl/sqigl/internal/backend/sqlite"
	"github.com/sqigl/sqigl/internal/manifest"
)

// openBackend dials whichever database kind info's manifest names.
func openBackend(ctx context.Context, info manifest.ProjectInfo) (backend.Driver, error) {
	switch {
	case info.Database.Postgres != nil:
		return postgres.Dial(ctx, *info.Database.Postgres)
	case info.Database.Sqlite != nil:
		return sqlite.Dial(info.Root, *info.Database.Sqlite)
	default:
		return nil, fmt.Errorf("project has no database configured")
	}
}
