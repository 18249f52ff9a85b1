package storage

import (
	"fmt"
	"strings"

	"github.com/LENAX/workflow-engine/pkg/storage"
	"github.com/LENAX/workflow-engine/pkg/storage/mysql"
	"github.com/LENAX/workflow-engine/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/workflow-engine/pkg/storage/sqlite"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlstore"
)

// DatabaseOptions 数据库连接参数（内部使用）
type DatabaseOptions struct {
	Type string // sqlite/mysql/postgres
	DSN  string
	Pool sqlstore.PoolOptions
}

// NewStore 按数据库类型创建存储（内部方法）
func NewStore(opts DatabaseOptions) (storage.Store, error) {
	switch strings.ToLower(opts.Type) {
	case "", "sqlite", "sqlite3":
		store, err := pkgsqlite.NewStoreFromDSN(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("create sqlite store failed: %w", err)
		}
		return store, nil
	case "mysql":
		store, err := mysql.NewStoreFromDSN(opts.DSN, opts.Pool)
		if err != nil {
			return nil, fmt.Errorf("create mysql store failed: %w", err)
		}
		return store, nil
	case "postgres", "postgresql":
		store, err := postgres.NewStoreFromDSN(opts.DSN, opts.Pool)
		if err != nil {
			return nil, fmt.Errorf("create postgres store failed: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", opts.Type)
	}
}
