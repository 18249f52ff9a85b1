// Package definition 工作流定义与版本的管理服务
package definition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage"
)

var (
	// ErrDefinitionExists 定义编码已存在
	ErrDefinitionExists = errors.New("工作流定义已存在")
	// ErrDefinitionNotFound 定义不存在
	ErrDefinitionNotFound = errors.New("工作流定义不存在")
	// ErrVersionNotFound 版本不存在
	ErrVersionNotFound = errors.New("工作流版本不存在")
	// ErrInvalidDsl DSL校验未通过
	ErrInvalidDsl = errors.New("DSL校验未通过")
	// ErrInvalidArgument 参数无效
	ErrInvalidArgument = errors.New("参数无效")
)

// ValidationError 发布校验失败，携带完整校验结果
type ValidationError struct {
	Result *dsl.ValidationResult
}

func (e *ValidationError) Error() string {
	return e.Result.Err().Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDsl
}

// DryRunReport 试运行报告，只解析和校验，不执行
type DryRunReport struct {
	DefinitionCode string                `json:"definitionCode"`
	VersionNumber  int                   `json:"versionNumber"`
	StartAt        string                `json:"startAt"`
	StepCount      int                   `json:"stepCount"`
	StepTypes      []string              `json:"stepTypes"`
	Input          map[string]any        `json:"input,omitempty"`
	Validation     *dsl.ValidationResult `json:"validation"`
	Valid          bool                  `json:"valid"`
}

// AnyOf 任一检查器认可即视为已知步骤类型
func AnyOf(checkers ...dsl.StepTypeChecker) dsl.StepTypeChecker {
	return func(stepType string) bool {
		for _, check := range checkers {
			if check != nil && check(stepType) {
				return true
			}
		}
		return false
	}
}

// AdminService 定义管理服务（对外导出）
type AdminService struct {
	repo  storage.DefinitionRepository
	known dsl.StepTypeChecker
}

// NewAdminService 创建管理服务，known用于发布时校验步骤类型
func NewAdminService(repo storage.DefinitionRepository, known dsl.StepTypeChecker) *AdminService {
	return &AdminService{repo: repo, known: known}
}

// CreateDefinition 创建工作流定义，编码唯一
func (s *AdminService) CreateDefinition(ctx context.Context, code, name, description string) (*workflow.Definition, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: 编码不能为空", ErrInvalidArgument)
	}
	existing, err := s.repo.GetDefinitionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionExists, code)
	}
	if name == "" {
		name = code
	}
	def := workflow.NewDefinition(code, name, description)
	if err := s.repo.SaveDefinition(ctx, def); err != nil {
		return nil, err
	}
	log.Printf("✅ [Definition] 创建工作流定义: Code=%s", code)
	return def, nil
}

// CreateVersion 创建草稿版本，版本号自动递增；DSL必须可以解析
func (s *AdminService) CreateVersion(ctx context.Context, code, dslJSON, changelog string) (*workflow.DefinitionVersion, error) {
	def, err := s.mustDefinition(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := dsl.Parse(dslJSON); err != nil {
		return nil, err
	}
	n, err := s.repo.NextVersionNumber(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	v := workflow.NewDefinitionVersion(def.ID, n, dslJSON, changelog)
	if err := s.repo.SaveVersion(ctx, v); err != nil {
		return nil, err
	}
	log.Printf("✅ [Definition] 创建版本: Code=%s, Version=%d", code, n)
	return v, nil
}

// PublishVersion 校验DSL后发布版本，校验失败返回 *ValidationError
func (s *AdminService) PublishVersion(ctx context.Context, code string, versionNumber int) (*workflow.DefinitionVersion, *dsl.ValidationResult, error) {
	_, v, err := s.mustVersion(ctx, code, versionNumber)
	if err != nil {
		return nil, nil, err
	}
	wdsl, err := dsl.Parse(v.DslJSON)
	if err != nil {
		return nil, nil, err
	}
	result := dsl.Validate(wdsl, s.known)
	if !result.Valid() {
		log.Printf("❌ [Definition] 发布校验失败: Code=%s, Version=%d, Errors=%d", code, versionNumber, len(result.Errors))
		return nil, result, &ValidationError{Result: result}
	}
	if v.IsPublished {
		return v, result, nil
	}
	v.Publish()
	if err := s.repo.SaveVersion(ctx, v); err != nil {
		return nil, result, err
	}
	log.Printf("✅ [Definition] 发布版本: Code=%s, Version=%d", code, versionNumber)
	return v, result, nil
}

// UnpublishVersion 取消发布，已在运行的实例不受影响
func (s *AdminService) UnpublishVersion(ctx context.Context, code string, versionNumber int) (*workflow.DefinitionVersion, error) {
	_, v, err := s.mustVersion(ctx, code, versionNumber)
	if err != nil {
		return nil, err
	}
	if !v.IsPublished {
		return v, nil
	}
	v.Unpublish()
	if err := s.repo.SaveVersion(ctx, v); err != nil {
		return nil, err
	}
	log.Printf("⏸️ [Definition] 取消发布: Code=%s, Version=%d", code, versionNumber)
	return v, nil
}

// GetDefinition 按编码获取定义
func (s *AdminService) GetDefinition(ctx context.Context, code string) (*workflow.Definition, error) {
	return s.mustDefinition(ctx, code)
}

// ListDefinitions 列出全部定义
func (s *AdminService) ListDefinitions(ctx context.Context) ([]*workflow.Definition, error) {
	return s.repo.ListDefinitions(ctx)
}

// ListVersions 列出定义的全部版本
func (s *AdminService) ListVersions(ctx context.Context, code string) ([]*workflow.DefinitionVersion, error) {
	def, err := s.mustDefinition(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, def.ID)
}

// GetVersion 获取指定版本
func (s *AdminService) GetVersion(ctx context.Context, code string, versionNumber int) (*workflow.DefinitionVersion, error) {
	_, v, err := s.mustVersion(ctx, code, versionNumber)
	return v, err
}

// DryRun 解析DSL和输入并给出校验报告
func (s *AdminService) DryRun(ctx context.Context, code string, versionNumber int, inputJSON string) (*DryRunReport, error) {
	_, v, err := s.mustVersion(ctx, code, versionNumber)
	if err != nil {
		return nil, err
	}
	wdsl, err := dsl.Parse(v.DslJSON)
	if err != nil {
		return nil, err
	}

	var input map[string]any
	if strings.TrimSpace(inputJSON) != "" {
		if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
			return nil, fmt.Errorf("%w: 输入不是合法的JSON对象: %v", ErrInvalidArgument, err)
		}
	}

	result := dsl.Validate(wdsl, s.known)
	return &DryRunReport{
		DefinitionCode: code,
		VersionNumber:  v.VersionNumber,
		StartAt:        wdsl.StartAt,
		StepCount:      len(wdsl.Steps),
		StepTypes:      wdsl.StepTypes(),
		Input:          input,
		Validation:     result,
		Valid:          result.Valid(),
	}, nil
}

func (s *AdminService) mustDefinition(ctx context.Context, code string) (*workflow.Definition, error) {
	def, err := s.repo.GetDefinitionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, code)
	}
	return def, nil
}

func (s *AdminService) mustVersion(ctx context.Context, code string, versionNumber int) (*workflow.Definition, *workflow.DefinitionVersion, error) {
	def, err := s.mustDefinition(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.repo.GetVersion(ctx, def.ID, versionNumber)
	if err != nil {
		return nil, nil, err
	}
	if v == nil {
		return nil, nil, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, code, versionNumber)
	}
	return def, v, nil
}
