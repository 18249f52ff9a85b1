package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/LENAX/workflow-engine/pkg/storage"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlstore"
)

// Dialect MySQL方言
type Dialect struct{}

var _ storage.Dialect = Dialect{}

// 时间保留微秒，补偿按结束时间倒序依赖亚秒精度
var ddlTypes = strings.NewReplacer(
	"DATETIME", "DATETIME(6)",
	"INTEGER NOT NULL DEFAULT 0", "TINYINT(1) NOT NULL DEFAULT 0",
)

func (Dialect) Name() string       { return "mysql" }
func (Dialect) DriverName() string { return "mysql" }

// UpsertSQL ON DUPLICATE KEY UPDATE，冲突列由表上的唯一键隐式决定
func (Dialect) UpsertSQL(tableName string, columns, _, updateColumns []string) string {
	return fmt.Sprintf("%s ON DUPLICATE KEY UPDATE %s",
		storage.NamedInsert(tableName, columns),
		storage.AssignList(updateColumns, "%[1]s = VALUES(%[1]s)"))
}

func (Dialect) CreateTableSQL(schema string) string {
	ddl := ddlTypes.Replace(schema)
	if strings.Contains(ddl, "CREATE TABLE") && !strings.Contains(ddl, "ENGINE=") {
		ddl = strings.TrimRight(strings.TrimSpace(ddl), ";") + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	}
	return ddl
}

// CreateIndexSQL MySQL不支持 IF NOT EXISTS
func (Dialect) CreateIndexSQL(indexName, tableName string, columns []string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s(%s)", indexName, tableName, strings.Join(columns, ", "))
}

func (Dialect) ConfigureDB() []string {
	return []string{
		"SET SESSION sql_mode='STRICT_TRANS_TABLES,NO_ZERO_IN_DATE,NO_ZERO_DATE,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION';",
		"SET time_zone = '+00:00';",
	}
}

// NormalizeDSN 补上 parseTime=true，时间列才能扫描为 time.Time
func NormalizeDSN(dsn string) string {
	switch {
	case strings.Contains(dsn, "parseTime=true"):
		return dsn
	case strings.Contains(dsn, "?"):
		return dsn + "&parseTime=true"
	default:
		return dsn + "?parseTime=true"
	}
}

// NewStoreFromDSN 打开MySQL存储，dsn形如 user:password@tcp(host:3306)/dbname
func NewStoreFromDSN(dsn string, pool sqlstore.PoolOptions) (*sqlstore.Store, error) {
	return sqlstore.Open(Dialect{}, NormalizeDSN(dsn), pool)
}
