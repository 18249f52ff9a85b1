package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/workflow-engine/pkg/storage"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlstore"
)

// Dialect SQLite方言，基准DDL即SQLite语法
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string       { return "sqlite" }
func (Dialect) DriverName() string { return "sqlite3" }

// UpsertSQL 需要 SQLite 3.24+
func (Dialect) UpsertSQL(tableName string, columns, conflictColumns, updateColumns []string) string {
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		storage.NamedInsert(tableName, columns),
		strings.Join(conflictColumns, ", "),
		storage.AssignList(updateColumns, "%[1]s = excluded.%[1]s"))
}

func (Dialect) CreateTableSQL(schema string) string { return schema }

func (Dialect) CreateIndexSQL(indexName, tableName string, columns []string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, tableName, strings.Join(columns, ", "))
}

// ConfigureDB WAL模式，忙等待30秒
func (Dialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// NewStoreFromDSN 打开SQLite存储
// SQLite单写者，连接数固定为1，避免事务内外连接互相等待锁
func NewStoreFromDSN(dsn string) (*sqlstore.Store, error) {
	return sqlstore.Open(Dialect{}, dsn, sqlstore.PoolOptions{MaxOpenConns: 1})
}
