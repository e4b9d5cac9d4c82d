package core

import (
	"context"
	"fmt"
	"os"

	"stockcore/internal/infra/keyed/memory"
	"stockcore/internal/infra/keyed/mysql"
	"stockcore/internal/infra/keyed/postgres"
	"stockcore/internal/infra/keyed/redis"
	"stockcore/internal/infra/keyed/sqlite"
	"stockcore/pkg/domain"
)

// StorageDriver identifies a concrete keyed store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMySQL    StorageDriver = "mysql"    // MySQL server
	StorageRedis    StorageDriver = "redis"    // Redis server
)

// OpenKeyedStore selects a keyed store backend using environment variables.
// Defaults to sqlite when unset.
//
//	STOCKCORE_STORAGE_DRIVER: memory|sqlite|postgres|mysql|redis (default sqlite)
//	STOCKCORE_SQLITE_PATH: path to sqlite file (default ./stockcore.db)
//	STOCKCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	STOCKCORE_MYSQL_DSN: mysql DSN when driver=mysql
//	STOCKCORE_REDIS_ADDR: host:port when driver=redis
//	STOCKCORE_REDIS_PREFIX: redis key prefix (default stockcore)
func OpenKeyedStore(ctx context.Context) (domain.KeyedStore, error) {
	driver := os.Getenv("STOCKCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("STOCKCORE_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("STOCKCORE_POSTGRES_DSN"))
	case StorageMySQL:
		return mysql.NewStore(os.Getenv("STOCKCORE_MYSQL_DSN"))
	case StorageRedis:
		return redis.Open(ctx, os.Getenv("STOCKCORE_REDIS_ADDR"), os.Getenv("STOCKCORE_REDIS_PREFIX"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
