package sqlstore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/workflow-engine/pkg/storage"
)

// PoolOptions 连接池配置
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Apply 应用到连接池，零值项不设置
func (o PoolOptions) Apply(db *sqlx.DB) {
	if o.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.MaxOpenConns)
	}
	if o.MaxIdleConns > 0 {
		db.SetMaxIdleConns(o.MaxIdleConns)
	}
	if o.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.ConnMaxLifetime)
	}
	if o.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(o.ConnMaxIdleTime)
	}
}

// Store 基于sqlx的Repository实现，三种数据库共用（对外导出）
// 所有SQL使用?占位符或:name命名参数，由sqlx按驱动重绑定
type Store struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// New 创建Store并初始化表结构
func New(db *sqlx.DB, dialect storage.Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return s, nil
}

// Open 打开数据库连接、执行方言配置并初始化表结构
func Open(dialect storage.Dialect, dsn string, pool PoolOptions) (*Store, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	pool.Apply(db)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置%s失败: %w", dialect.Name(), err)
		}
	}

	s, err := New(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// GetDB 获取底层数据库连接（对外导出）
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect 当前数据库方言
func (s *Store) Dialect() storage.Dialect {
	return s.dialect
}

// Close 关闭数据库连接（对外导出）
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx 在事务中执行fn，fn内只能使用tx
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

type tableSchema struct {
	name    string
	ddl     string
	indexes []indexSchema
}

type indexSchema struct {
	name    string
	columns []string
}

// 基准DDL为SQLite语法，布尔列统一写作 INTEGER NOT NULL DEFAULT 0，计数列写作 INT/BIGINT
var schemas = []tableSchema{
	{
		name: "workflow_definitions",
		ddl: `
	CREATE TABLE IF NOT EXISTS workflow_definitions (
		id VARCHAR(64) PRIMARY KEY,
		code VARCHAR(128) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		created_by VARCHAR(128) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	},
	{
		name: "workflow_definition_versions",
		ddl: `
	CREATE TABLE IF NOT EXISTS workflow_definition_versions (
		id VARCHAR(64) PRIMARY KEY,
		definition_id VARCHAR(64) NOT NULL,
		version_number INT NOT NULL,
		dsl_json TEXT NOT NULL,
		is_published INTEGER NOT NULL DEFAULT 0,
		schema_version INT NOT NULL,
		changelog TEXT NOT NULL,
		published_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (definition_id) REFERENCES workflow_definitions(id),
		UNIQUE (definition_id, version_number)
	)`,
	},
	{
		name: "workflow_runs",
		ddl: `
	CREATE TABLE IF NOT EXISTS workflow_runs (
		id VARCHAR(64) PRIMARY KEY,
		definition_code VARCHAR(128) NOT NULL,
		version_number INT NOT NULL,
		status VARCHAR(32) NOT NULL,
		context_json TEXT NOT NULL,
		correlation_id VARCHAR(255) NOT NULL,
		current_step_id VARCHAR(128) NOT NULL,
		resume_signal VARCHAR(255) NOT NULL,
		error_message TEXT NOT NULL,
		cancel_reason TEXT NOT NULL,
		version BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME NULL
	)`,
		indexes: []indexSchema{
			{name: "idx_workflow_runs_correlation", columns: []string{"correlation_id", "status"}},
			{name: "idx_workflow_runs_definition", columns: []string{"definition_code"}},
			{name: "idx_workflow_runs_status", columns: []string{"status"}},
		},
	},
	{
		name: "workflow_run_steps",
		ddl: `
	CREATE TABLE IF NOT EXISTS workflow_run_steps (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		step_id VARCHAR(128) NOT NULL,
		step_type VARCHAR(128) NOT NULL,
		status VARCHAR(32) NOT NULL,
		attempts INT NOT NULL,
		execution_key VARCHAR(255) NOT NULL UNIQUE,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NULL,
		error_message TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES workflow_runs(id)
	)`,
		indexes: []indexSchema{
			{name: "idx_workflow_run_steps_run", columns: []string{"run_id", "step_id"}},
		},
	},
	{
		// 信号只追加，不引用运行实例（未知运行ID的信号同样记录）
		name: "workflow_signals",
		ddl: `
	CREATE TABLE IF NOT EXISTS workflow_signals (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		payload_json TEXT NOT NULL,
		handled_at DATETIME NOT NULL
	)`,
		indexes: []indexSchema{
			{name: "idx_workflow_signals_run", columns: []string{"run_id"}},
		},
	},
	{
		name: "workflow_transitions",
		ddl: `
	CREATE TABLE IF NOT EXISTS workflow_transitions (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		from_step_id VARCHAR(128) NOT NULL,
		to_step_id VARCHAR(128) NOT NULL,
		reason VARCHAR(64) NOT NULL,
		created_at DATETIME NOT NULL
	)`,
		indexes: []indexSchema{
			{name: "idx_workflow_transitions_run", columns: []string{"run_id"}},
		},
	},
	{
		name: "workflow_timers",
		ddl: `
	CREATE TABLE IF NOT EXISTS workflow_timers (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		step_id VARCHAR(128) NOT NULL,
		signal_name VARCHAR(255) NOT NULL,
		due_at DATETIME NOT NULL,
		fired_at DATETIME NULL
	)`,
		indexes: []indexSchema{
			{name: "idx_workflow_timers_due", columns: []string{"due_at"}},
		},
	},
	{
		name: "idempotency_keys",
		ddl: `
	CREATE TABLE IF NOT EXISTS idempotency_keys (
		route VARCHAR(128) NOT NULL,
		idem_key VARCHAR(255) NOT NULL,
		body_hash VARCHAR(128) NOT NULL,
		status_code INT NOT NULL,
		response_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NULL,
		PRIMARY KEY (route, idem_key)
	)`,
	},
	{
		name: "compensation_ledger",
		ddl: `
	CREATE TABLE IF NOT EXISTS compensation_ledger (
		execution_key VARCHAR(255) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		step_id VARCHAR(128) NOT NULL,
		action_index INT NOT NULL,
		action_type VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		attempts INT NOT NULL,
		error_message TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
		indexes: []indexSchema{
			{name: "idx_compensation_ledger_run", columns: []string{"run_id"}},
		},
	},
}

// initSchema 初始化数据库表结构
func (s *Store) initSchema() error {
	for _, t := range schemas {
		if _, err := s.db.Exec(s.dialect.CreateTableSQL(t.ddl)); err != nil {
			return fmt.Errorf("创建表 %s 失败: %w", t.name, err)
		}
		for _, idx := range t.indexes {
			// 索引已存在（MySQL无IF NOT EXISTS）时忽略
			if _, err := s.db.Exec(s.dialect.CreateIndexSQL(idx.name, t.name, idx.columns)); err != nil {
				log.Printf("⚠️ [Storage] 创建索引 %s 跳过: %v", idx.name, err)
			}
		}
	}
	return nil
}

// 确保实现接口
var _ storage.Store = (*Store)(nil)
