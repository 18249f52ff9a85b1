package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMySQLDialect_UpsertSQL(t *testing.T) {
	d := Dialect{}
	sql := d.UpsertSQL("compensation_ledger", []string{"execution_key", "status"}, []string{"execution_key"}, []string{"status"})
	assert.Equal(t,
		"INSERT INTO compensation_ledger (execution_key, status) VALUES (:execution_key, :status) ON DUPLICATE KEY UPDATE status = VALUES(status)",
		sql)
}

func TestMySQLDialect_CreateTableSQL(t *testing.T) {
	d := Dialect{}
	ddl := d.CreateTableSQL("CREATE TABLE IF NOT EXISTS t (ended_at DATETIME NULL, is_published INTEGER NOT NULL DEFAULT 0)")
	assert.Contains(t, ddl, "ended_at DATETIME(6) NULL")
	assert.Contains(t, ddl, "TINYINT(1) NOT NULL DEFAULT 0")
	assert.Contains(t, ddl, "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
}

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", NormalizeDSN("u:p@tcp(h:3306)/db"))
	assert.Equal(t, "u:p@tcp(h:3306)/db?charset=utf8mb4&parseTime=true", NormalizeDSN("u:p@tcp(h:3306)/db?charset=utf8mb4"))
	assert.Equal(t, "x?parseTime=true", NormalizeDSN("x?parseTime=true"))
}
