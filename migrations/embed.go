// Package migrations embeds the SQL schema migrations into the binary so the
// bot can create its database without the files on disk.
package migrations

import (
	"embed"

	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
