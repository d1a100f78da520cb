package db

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

// Migrate applies the "-- +migrate Up" sections of every *.sql file under root in fsys.
// Each service keeps its own bookkeeping table so services can share a database in dev.
func Migrate(ctx context.Context, pool *Pool, fsys embed.FS, root, table string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sqlDB := stdlib.OpenDBFromPool(pool.Pool)
	defer sqlDB.Close()

	set := migrate.MigrationSet{TableName: table}
	src := &migrate.EmbedFileSystemMigrationSource{FileSystem: fsys, Root: root}
	return set.Exec(sqlDB, "postgres", src, migrate.Up)
}
