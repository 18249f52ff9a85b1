package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage/dao"
)

var (
	definitionColumns = []string{"id", "code", "name", "description", "created_by", "created_at", "updated_at"}
	versionColumns    = []string{"id", "definition_id", "version_number", "dsl_json", "is_published", "schema_version", "changelog", "published_at", "created_at"}
)

// SaveDefinition 创建或更新定义（按ID幂等）
func (s *Store) SaveDefinition(ctx context.Context, def *workflow.Definition) error {
	query := s.dialect.UpsertSQL("workflow_definitions", definitionColumns, []string{"id"},
		[]string{"name", "description", "updated_at"})
	if _, err := s.db.NamedExecContext(ctx, query, dao.FromDefinition(def)); err != nil {
		return fmt.Errorf("保存工作流定义失败: %w", err)
	}
	return nil
}

// GetDefinitionByCode 根据编码获取定义，不存在返回 nil, nil
func (s *Store) GetDefinitionByCode(ctx context.Context, code string) (*workflow.Definition, error) {
	var d dao.DefinitionDAO
	query := s.db.Rebind(`SELECT * FROM workflow_definitions WHERE code = ?`)
	if err := s.db.GetContext(ctx, &d, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}
	return d.ToEntity(), nil
}

// ListDefinitions 列出全部定义
func (s *Store) ListDefinitions(ctx context.Context) ([]*workflow.Definition, error) {
	var rows []dao.DefinitionDAO
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM workflow_definitions ORDER BY code`); err != nil {
		return nil, fmt.Errorf("查询工作流定义列表失败: %w", err)
	}
	defs := make([]*workflow.Definition, 0, len(rows))
	for i := range rows {
		defs = append(defs, rows[i].ToEntity())
	}
	return defs, nil
}

// SaveVersion 创建或更新版本，已存在时只更新发布状态
func (s *Store) SaveVersion(ctx context.Context, v *workflow.DefinitionVersion) error {
	query := s.dialect.UpsertSQL("workflow_definition_versions", versionColumns, []string{"id"},
		[]string{"is_published", "published_at"})
	if _, err := s.db.NamedExecContext(ctx, query, dao.FromDefinitionVersion(v)); err != nil {
		return fmt.Errorf("保存工作流版本失败: %w", err)
	}
	return nil
}

// GetVersion 获取指定版本号，不存在返回 nil, nil
func (s *Store) GetVersion(ctx context.Context, definitionID string, versionNumber int) (*workflow.DefinitionVersion, error) {
	query := s.db.Rebind(`SELECT * FROM workflow_definition_versions WHERE definition_id = ? AND version_number = ?`)
	return s.getVersion(ctx, query, definitionID, versionNumber)
}

// GetLatestPublishedVersion 获取版本号最大的已发布版本，不存在返回 nil, nil
func (s *Store) GetLatestPublishedVersion(ctx context.Context, definitionID string) (*workflow.DefinitionVersion, error) {
	query := s.db.Rebind(`SELECT * FROM workflow_definition_versions
		WHERE definition_id = ? AND is_published = ?
		ORDER BY version_number DESC LIMIT 1`)
	return s.getVersion(ctx, query, definitionID, true)
}

func (s *Store) getVersion(ctx context.Context, query string, args ...any) (*workflow.DefinitionVersion, error) {
	var v dao.DefinitionVersionDAO
	if err := s.db.GetContext(ctx, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询工作流版本失败: %w", err)
	}
	return v.ToEntity(), nil
}

// ListVersions 列出定义的全部版本
func (s *Store) ListVersions(ctx context.Context, definitionID string) ([]*workflow.DefinitionVersion, error) {
	var rows []dao.DefinitionVersionDAO
	query := s.db.Rebind(`SELECT * FROM workflow_definition_versions WHERE definition_id = ? ORDER BY version_number`)
	if err := s.db.SelectContext(ctx, &rows, query, definitionID); err != nil {
		return nil, fmt.Errorf("查询工作流版本列表失败: %w", err)
	}
	versions := make([]*workflow.DefinitionVersion, 0, len(rows))
	for i := range rows {
		versions = append(versions, rows[i].ToEntity())
	}
	return versions, nil
}

// NextVersionNumber 下一个可用版本号
func (s *Store) NextVersionNumber(ctx context.Context, definitionID string) (int, error) {
	var maxVersion sql.NullInt64
	query := s.db.Rebind(`SELECT MAX(version_number) FROM workflow_definition_versions WHERE definition_id = ?`)
	if err := s.db.GetContext(ctx, &maxVersion, query, definitionID); err != nil {
		return 0, fmt.Errorf("查询最大版本号失败: %w", err)
	}
	return int(maxVersion.Int64) + 1, nil
}
