package dao

import (
	"database/sql"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// DefinitionDAO workflow_definitions 表映射
type DefinitionDAO struct {
	ID          string    `db:"id"`
	Code        string    `db:"code"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// FromDefinition 实体转DAO
func FromDefinition(d *workflow.Definition) *DefinitionDAO {
	return &DefinitionDAO{
		ID:          d.ID,
		Code:        d.Code,
		Name:        d.Name,
		Description: d.Description,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// ToEntity DAO转实体
func (d *DefinitionDAO) ToEntity() *workflow.Definition {
	return &workflow.Definition{
		ID:          d.ID,
		Code:        d.Code,
		Name:        d.Name,
		Description: d.Description,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// DefinitionVersionDAO workflow_definition_versions 表映射
type DefinitionVersionDAO struct {
	ID            string       `db:"id"`
	DefinitionID  string       `db:"definition_id"`
	VersionNumber int          `db:"version_number"`
	DslJSON       string       `db:"dsl_json"`
	IsPublished   bool         `db:"is_published"`
	SchemaVersion int          `db:"schema_version"`
	Changelog     string       `db:"changelog"`
	PublishedAt   sql.NullTime `db:"published_at"`
	CreatedAt     time.Time    `db:"created_at"`
}

// FromDefinitionVersion 实体转DAO
func FromDefinitionVersion(v *workflow.DefinitionVersion) *DefinitionVersionDAO {
	return &DefinitionVersionDAO{
		ID:            v.ID,
		DefinitionID:  v.DefinitionID,
		VersionNumber: v.VersionNumber,
		DslJSON:       v.DslJSON,
		IsPublished:   v.IsPublished,
		SchemaVersion: v.SchemaVersion,
		Changelog:     v.Changelog,
		PublishedAt:   nullTime(v.PublishedAt),
		CreatedAt:     v.CreatedAt.UTC(),
	}
}

// ToEntity DAO转实体
func (d *DefinitionVersionDAO) ToEntity() *workflow.DefinitionVersion {
	return &workflow.DefinitionVersion{
		ID:            d.ID,
		DefinitionID:  d.DefinitionID,
		VersionNumber: d.VersionNumber,
		DslJSON:       d.DslJSON,
		IsPublished:   d.IsPublished,
		SchemaVersion: d.SchemaVersion,
		Changelog:     d.Changelog,
		PublishedAt:   timePtr(d.PublishedAt),
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

// IdempotencyDAO idempotency_keys 表映射
type IdempotencyDAO struct {
	Route        string       `db:"route"`
	Key          string       `db:"idem_key"`
	BodyHash     string       `db:"body_hash"`
	StatusCode   int          `db:"status_code"`
	ResponseJSON string       `db:"response_json"`
	CreatedAt    time.Time    `db:"created_at"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
}

// FromIdempotencyRecord 实体转DAO
func FromIdempotencyRecord(r *workflow.IdempotencyRecord) *IdempotencyDAO {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &IdempotencyDAO{
		Route:        r.Route,
		Key:          r.Key,
		BodyHash:     r.BodyHash,
		StatusCode:   r.StatusCode,
		ResponseJSON: r.ResponseJSON,
		CreatedAt:    created.UTC(),
		ExpiresAt:    nullTime(r.ExpiresAt),
	}
}

// ToEntity DAO转实体
func (d *IdempotencyDAO) ToEntity() *workflow.IdempotencyRecord {
	return &workflow.IdempotencyRecord{
		Route:        d.Route,
		Key:          d.Key,
		BodyHash:     d.BodyHash,
		StatusCode:   d.StatusCode,
		ResponseJSON: d.ResponseJSON,
		CreatedAt:    d.CreatedAt.UTC(),
		ExpiresAt:    timePtr(d.ExpiresAt),
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
