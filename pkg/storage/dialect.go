package storage

import (
	"fmt"
	"strings"
)

// Dialect SQL方言接口（对外导出）
// sqlstore 只维护一份 SQLite 风格的基准DDL，差异由方言翻译
type Dialect interface {
	// Name 方言名称: sqlite/mysql/postgres
	Name() string

	// DriverName database/sql 驱动名，sqlx 依此决定占位符风格
	DriverName() string

	// UpsertSQL 命名参数形式的插入或更新语句
	// conflictColumns 为主键或唯一键，updateColumns 为冲突时覆盖的列
	UpsertSQL(tableName string, columns []string, conflictColumns []string, updateColumns []string) string

	// CreateTableSQL 把基准DDL翻译为当前数据库的DDL
	CreateTableSQL(schema string) string

	// CreateIndexSQL 创建索引的DDL
	// MySQL 不支持 IF NOT EXISTS，重复创建的错误由调用方忽略
	CreateIndexSQL(indexName, tableName string, columns []string) string

	// ConfigureDB 建连后执行的会话配置语句
	ConfigureDB() []string
}

// NamedInsert INSERT INTO t (a, b) VALUES (:a, :b)
func NamedInsert(tableName string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		tableName, strings.Join(columns, ", "), strings.Join(columns, ", :"))
}

// AssignList 按格式生成更新子句，format 中 %[1]s 为列名，例如 "%[1]s = excluded.%[1]s"
func AssignList(columns []string, format string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf(format, col)
	}
	return strings.Join(parts, ", ")
}
