package workflow

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSchemaVersion DSL结构版本
const DefaultSchemaVersion = 1

// Definition 工作流定义（对外导出）
type Definition struct {
	ID          string
	Code        string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewDefinition 创建工作流定义
func NewDefinition(code, name, description string) *Definition {
	now := time.Now().UTC()
	return &Definition{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        name,
		Description: description,
		CreatedBy:   "System",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DefinitionVersion 工作流定义版本
// 创建后只允许切换发布状态
type DefinitionVersion struct {
	ID            string
	DefinitionID  string
	VersionNumber int
	DslJSON       string
	IsPublished   bool
	SchemaVersion int
	Changelog     string
	PublishedAt   *time.Time
	CreatedAt     time.Time
}

// NewDefinitionVersion 创建草稿版本
func NewDefinitionVersion(definitionID string, versionNumber int, dslJSON, changelog string) *DefinitionVersion {
	return &DefinitionVersion{
		ID:            uuid.NewString(),
		DefinitionID:  definitionID,
		VersionNumber: versionNumber,
		DslJSON:       dslJSON,
		SchemaVersion: DefaultSchemaVersion,
		Changelog:     changelog,
		CreatedAt:     time.Now().UTC(),
	}
}

// Publish 发布
func (v *DefinitionVersion) Publish() {
	now := time.Now().UTC()
	v.IsPublished = true
	v.PublishedAt = &now
}

// Unpublish 取消发布
func (v *DefinitionVersion) Unpublish() {
	v.IsPublished = false
}

// IdempotencyRecord 幂等记录（route + key 唯一）
type IdempotencyRecord struct {
	Route        string
	Key          string
	BodyHash     string
	StatusCode   int
	ResponseJSON string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
}
