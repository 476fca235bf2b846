// Package warehouse embeds the schema migrations for the ClickHouse namespace
// databases and the Postgres function registry.
package warehouse

import (
	"embed"
	"sync"
)

//go:embed db/clickhouse/migrations/*.sql
var ClickHouseMigrationsFS embed.FS

//go:embed db/postgres/migrations/*.sql
var PostgresMigrationsFS embed.FS

// goose keeps its dialect and base FS in package state.
var migrationsMu sync.Mutex

// LockMigrations serializes goose runs across the process. Call the returned
// function to release the lock.
func LockMigrations() func() {
	migrationsMu.Lock()
	return migrationsMu.Unlock
}
