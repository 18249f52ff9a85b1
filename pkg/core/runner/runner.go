// Package runner 同步执行工作流：单次调用内跑完全部步骤，不持久化、不暂停、不补偿
package runner

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage"
)

// 步骤类型
const (
	TypeApiCall = "apiCall"
	TypeReturn  = "return"
)

// SupportsStepType 同步执行是否支持该步骤类型
func SupportsStepType(stepType string) bool {
	return stepType == TypeApiCall || stepType == TypeReturn
}

// 错误码
const (
	CodeWorkflowNotFound = "WORKFLOW_NOT_FOUND"
	CodeDslParseError    = "DSL_PARSE_ERROR"
	CodeInvalidDsl       = "INVALID_DSL"
	CodeApiError         = "API_ERROR"
	CodeMappingError     = "MAPPING_ERROR"
	CodeUnsupportedStep  = "UNSUPPORTED_STEP"
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
)

// DefaultMaxSteps 单次执行的步骤上限
const DefaultMaxSteps = 1000

// RunRequest 同步执行请求，VersionNumber为0时使用最新发布版本
type RunRequest struct {
	DefinitionCode string         `json:"definitionCode"`
	VersionNumber  int            `json:"versionNumber"`
	Form           map[string]any `json:"form,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
}

// RunResult 同步执行结果
type RunResult struct {
	Success       bool              `json:"success"`
	ErrorCode     string            `json:"errorCode,omitempty"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	Output        any               `json:"output,omitempty"`
	Context       *ExecutionContext `json:"context"`
	StepsExecuted int               `json:"stepsExecuted"`
}

func failed(code, message string, execCtx *ExecutionContext) *RunResult {
	return &RunResult{ErrorCode: code, ErrorMessage: message, Context: execCtx}
}

// Runner 同步执行器（对外导出）
type Runner struct {
	definitions storage.DefinitionRepository
	invoker     types.ApiInvoker
	mapper      types.Mapper
	maxSteps    int
}

// New 创建同步执行器，maxSteps<=0 时使用 DefaultMaxSteps
func New(definitions storage.DefinitionRepository, invoker types.ApiInvoker, mapper types.Mapper, maxSteps int) *Runner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Runner{
		definitions: definitions,
		invoker:     invoker,
		mapper:      mapper,
		maxSteps:    maxSteps,
	}
}

// Run 执行工作流，所有失败都通过RunResult的错误码返回
func (r *Runner) Run(ctx context.Context, req RunRequest) *RunResult {
	execCtx := NewExecutionContext(req.Form, req.Vars)

	version, err := r.resolveVersion(ctx, req.DefinitionCode, req.VersionNumber)
	if err != nil {
		return failed(CodeWorkflowNotFound, err.Error(), execCtx)
	}
	if version == nil {
		return failed(CodeWorkflowNotFound, fmt.Sprintf("工作流 %s v%d 不存在", req.DefinitionCode, req.VersionNumber), execCtx)
	}

	wdsl, err := dsl.Parse(version.DslJSON)
	if err != nil {
		return failed(CodeDslParseError, err.Error(), execCtx)
	}
	if len(wdsl.Steps) == 0 {
		return failed(CodeInvalidDsl, "DSL为空或无效", execCtx)
	}

	currentID := wdsl.StartAt
	if currentID == "" {
		currentID = wdsl.Steps[0].ID
	}

	log.Printf("🚀 [Runner] 开始同步执行: Code=%s, Version=%d", req.DefinitionCode, version.VersionNumber)
	executed := 0
	for currentID != "" {
		if err := ctx.Err(); err != nil {
			res := failed(CodeApiError, err.Error(), execCtx)
			res.StepsExecuted = executed
			return res
		}
		stepDsl, ok := wdsl.FindStep(currentID)
		if !ok {
			break
		}
		if executed >= r.maxSteps {
			res := failed(CodeMaxStepsExceeded, fmt.Sprintf("执行步骤数超过上限 %d", r.maxSteps), execCtx)
			res.StepsExecuted = executed
			return res
		}
		executed++

		switch stepDsl.Type {
		case TypeApiCall:
			if res := r.apiCall(ctx, execCtx, stepDsl); res != nil {
				res.StepsExecuted = executed
				return res
			}
		case TypeReturn:
			output := r.returnOutput(ctx, execCtx, stepDsl)
			log.Printf("✅ [Runner] 同步执行完成: Code=%s, Steps=%d", req.DefinitionCode, executed)
			return &RunResult{Success: true, Output: output, Context: execCtx, StepsExecuted: executed}
		default:
			res := failed(CodeUnsupportedStep, fmt.Sprintf("步骤 %s 的类型不支持同步执行: %s", stepDsl.ID, stepDsl.Type), execCtx)
			res.StepsExecuted = executed
			return res
		}

		currentID = nextStepID(wdsl, stepDsl)
	}

	log.Printf("✅ [Runner] 同步执行完成: Code=%s, Steps=%d", req.DefinitionCode, executed)
	return &RunResult{Success: true, Context: execCtx, StepsExecuted: executed}
}

func (r *Runner) resolveVersion(ctx context.Context, code string, number int) (*workflow.DefinitionVersion, error) {
	def, err := r.definitions.GetDefinitionByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}
	if def == nil {
		return nil, nil
	}
	if number <= 0 {
		return r.definitions.GetLatestPublishedVersion(ctx, def.ID)
	}
	return r.definitions.GetVersion(ctx, def.ID, number)
}

// nextStepID 第一个流转目标，没有流转时取列表中的下一个步骤
func nextStepID(wdsl *dsl.WorkflowDsl, stepDsl *dsl.StepDsl) string {
	if next, ok := stepDsl.FirstTransition(); ok {
		return next
	}
	if after, ok := wdsl.StepAfter(stepDsl.ID); ok {
		return after.ID
	}
	return ""
}

// apiCall 执行apiCall步骤，失败时返回结果，成功返回nil
func (r *Runner) apiCall(ctx context.Context, execCtx *ExecutionContext, stepDsl *dsl.StepDsl) *RunResult {
	methodRef := stepDsl.ConfigString("apiMethodRef")
	if methodRef == "" {
		return failed(CodeInvalidDsl, fmt.Sprintf("步骤 %s 缺少 apiMethodRef 配置", stepDsl.ID), execCtx)
	}
	if r.invoker == nil {
		return failed(CodeApiError, "未配置API调用器", execCtx)
	}

	req := &types.ApiRequest{}
	if mappingID := stepDsl.ConfigString("inputMappingSetId"); mappingID != "" {
		mapped, err := r.applyMapping(ctx, mappingID, execCtx.AsMap())
		if err != nil {
			return failed(CodeMappingError, fmt.Sprintf("步骤 %s 输入映射失败: %v", stepDsl.ID, err), execCtx)
		}
		req.Headers = mapped.Headers
		req.Query = mapped.Query
		req.Body = mapped.Body
	}

	resp, err := r.invoker.Invoke(ctx, methodRef, req)
	if err != nil {
		return failed(CodeApiError, fmt.Sprintf("步骤 %s 调用失败: %v", stepDsl.ID, err), execCtx)
	}

	state := &StepState{Status: StepSuccess, Response: resp.Body}
	if !resp.IsSuccess() {
		state.Status = StepFailed
	}
	if stepDsl.ConfigBool("saveStepIO") {
		state.Request = req.Body
	}
	execCtx.Steps[stepDsl.ID] = state

	if !resp.IsSuccess() {
		log.Printf("❌ [Runner] 步骤失败: StepID=%s, Status=%d", stepDsl.ID, resp.StatusCode)
		return failed(CodeApiError, fmt.Sprintf("步骤 %s 失败，状态码 %d", stepDsl.ID, resp.StatusCode), execCtx)
	}

	if mappingID := stepDsl.ConfigString("outputMappingSetId"); mappingID != "" {
		input := execCtx.AsMap()
		input["response"] = resp.Body
		mapped, err := r.applyMapping(ctx, mappingID, input)
		if err != nil {
			return failed(CodeMappingError, fmt.Sprintf("步骤 %s 输出映射失败: %v", stepDsl.ID, err), execCtx)
		}
		execCtx.ApplyVarsPatch(mapped.VarsPatch)
	}

	if assignTo := stepDsl.ConfigString("assignTo"); assignTo != "" && resp.Body != nil {
		execCtx.Vars[strings.TrimPrefix(assignTo, "vars.")] = resp.Body
	}
	return nil
}

// returnOutput 计算return步骤的输出：映射集优先，其次source，默认返回完整上下文
func (r *Runner) returnOutput(ctx context.Context, execCtx *ExecutionContext, stepDsl *dsl.StepDsl) any {
	if mappingID := stepDsl.ConfigString("outputMappingSetId"); mappingID != "" {
		mapped, err := r.applyMapping(ctx, mappingID, execCtx.AsMap())
		if err != nil {
			log.Printf("⚠️ [Runner] return映射失败: StepID=%s, Error=%v", stepDsl.ID, err)
			return map[string]any{"error": "Mapping failed"}
		}
		if mapped.Body != nil {
			return mapped.Body
		}
		return mapped.Output()
	}

	if source := stepDsl.ConfigString("source"); source != "" {
		if source == "form" {
			return execCtx.Form
		}
		if v, ok := execCtx.Vars[strings.TrimPrefix(source, "vars.")]; ok {
			return v
		}
		if v, ok := workflow.LookupPath(execCtx.Vars, strings.TrimPrefix(source, "vars.")); ok {
			return v
		}
		return nil
	}
	return execCtx
}

func (r *Runner) applyMapping(ctx context.Context, mappingID string, input map[string]any) (*types.MappingResult, error) {
	if r.mapper == nil {
		return nil, fmt.Errorf("未配置映射服务")
	}
	mapped, err := r.mapper.Apply(ctx, mappingID, input)
	if err != nil {
		return nil, err
	}
	if mapped == nil {
		mapped = &types.MappingResult{}
	}
	return mapped, nil
}
