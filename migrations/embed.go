// Package migrations embeds the brickd SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/brickd/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
