package dto

import (
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/step"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// RunDetail 运行实例
type RunDetail struct {
	ID             string         `json:"id"`
	DefinitionCode string         `json:"definition_code"`
	VersionNumber  int            `json:"version_number"`
	Status         string         `json:"status"`
	Context        map[string]any `json:"context"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	CurrentStepID  string         `json:"current_step_id,omitempty"`
	ResumeSignal   string         `json:"resume_signal,omitempty"`
	Error          string         `json:"error,omitempty"`
	CancelReason   string         `json:"cancel_reason,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NewRunDetail 转换运行实例，上下文无法解析时返回空对象
func NewRunDetail(run *workflow.Run) RunDetail {
	ctx, err := run.ContextMap()
	if err != nil || ctx == nil {
		ctx = map[string]any{}
	}
	return RunDetail{
		ID:             run.ID,
		DefinitionCode: run.DefinitionCode,
		VersionNumber:  run.VersionNumber,
		Status:         run.Status.String(),
		Context:        ctx,
		CorrelationID:  run.CorrelationID,
		CurrentStepID:  run.CurrentStepID,
		ResumeSignal:   run.ResumeSignal,
		Error:          run.Error,
		CancelReason:   run.CancelReason,
		Version:        run.Version,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
		CompletedAt:    run.CompletedAt,
	}
}

// RunSummary 运行列表项
type RunSummary struct {
	ID             string    `json:"id"`
	DefinitionCode string    `json:"definition_code"`
	VersionNumber  int       `json:"version_number"`
	Status         string    `json:"status"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	CurrentStepID  string    `json:"current_step_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewRunSummary 转换运行列表项
func NewRunSummary(run *workflow.Run) RunSummary {
	return RunSummary{
		ID:             run.ID,
		DefinitionCode: run.DefinitionCode,
		VersionNumber:  run.VersionNumber,
		Status:         run.Status.String(),
		CorrelationID:  run.CorrelationID,
		CurrentStepID:  run.CurrentStepID,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
	}
}

// RunStepDetail 步骤执行记录
type RunStepDetail struct {
	ID           string     `json:"id"`
	StepID       string     `json:"step_id"`
	StepType     string     `json:"step_type"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	ExecutionKey string     `json:"execution_key"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// SignalDetail 信号记录
type SignalDetail struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload,omitempty"`
	HandledAt time.Time      `json:"handled_at"`
}

// TransitionDetail 流转记录
type TransitionDetail struct {
	FromStepID string    `json:"from_step_id"`
	ToStepID   string    `json:"to_step_id"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CompensationDetail 补偿台账条目
type CompensationDetail struct {
	ExecutionKey string    `json:"execution_key"`
	StepID       string    `json:"step_id"`
	ActionIndex  int       `json:"action_index"`
	ActionType   string    `json:"action_type"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RunHistoryResponse 运行完整轨迹
type RunHistoryResponse struct {
	Run           RunDetail            `json:"run"`
	Steps         []RunStepDetail      `json:"steps"`
	Signals       []SignalDetail       `json:"signals"`
	Transitions   []TransitionDetail   `json:"transitions"`
	Compensations []CompensationDetail `json:"compensations"`
}

// NewRunHistoryResponse 转换运行轨迹
func NewRunHistoryResponse(h *engine.RunHistory) RunHistoryResponse {
	resp := RunHistoryResponse{
		Run:           NewRunDetail(h.Run),
		Steps:         make([]RunStepDetail, 0, len(h.Steps)),
		Signals:       make([]SignalDetail, 0, len(h.Signals)),
		Transitions:   make([]TransitionDetail, 0, len(h.Transitions)),
		Compensations: make([]CompensationDetail, 0, len(h.Compensations)),
	}
	for _, s := range h.Steps {
		resp.Steps = append(resp.Steps, RunStepDetail{
			ID:           s.ID,
			StepID:       s.StepID,
			StepType:     s.StepType,
			Status:       string(s.Status),
			Attempts:     s.Attempts,
			ExecutionKey: s.ExecutionKey,
			StartedAt:    s.StartedAt,
			EndedAt:      s.EndedAt,
			Error:        s.Error,
		})
	}
	for _, s := range h.Signals {
		payload, _ := workflow.DecodeContext(s.PayloadJSON)
		resp.Signals = append(resp.Signals, SignalDetail{
			ID:        s.ID,
			Name:      s.Name,
			Payload:   payload,
			HandledAt: s.HandledAt,
		})
	}
	for _, t := range h.Transitions {
		resp.Transitions = append(resp.Transitions, TransitionDetail{
			FromStepID: t.FromStepID,
			ToStepID:   t.ToStepID,
			Reason:     t.Reason,
			CreatedAt:  t.CreatedAt,
		})
	}
	for _, c := range h.Compensations {
		resp.Compensations = append(resp.Compensations, newCompensationDetail(c))
	}
	return resp
}

func newCompensationDetail(c *saga.LedgerEntry) CompensationDetail {
	return CompensationDetail{
		ExecutionKey: c.ExecutionKey,
		StepID:       c.StepID,
		ActionIndex:  c.ActionIndex,
		ActionType:   c.ActionType,
		Status:       string(c.Status),
		Attempts:     c.Attempts,
		Error:        c.Error,
		UpdatedAt:    c.UpdatedAt,
	}
}

// DefinitionDetail 工作流定义
type DefinitionDetail struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewDefinitionDetail 转换工作流定义
func NewDefinitionDetail(def *workflow.Definition) DefinitionDetail {
	return DefinitionDetail{
		ID:          def.ID,
		Code:        def.Code,
		Name:        def.Name,
		Description: def.Description,
		CreatedAt:   def.CreatedAt,
		UpdatedAt:   def.UpdatedAt,
	}
}

// VersionDetail 定义版本
type VersionDetail struct {
	VersionNumber int        `json:"version_number"`
	IsPublished   bool       `json:"is_published"`
	SchemaVersion int        `json:"schema_version"`
	Changelog     string     `json:"changelog,omitempty"`
	Dsl           string     `json:"dsl,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewVersionDetail 转换定义版本，withDsl控制是否携带DSL原文
func NewVersionDetail(v *workflow.DefinitionVersion, withDsl bool) VersionDetail {
	d := VersionDetail{
		VersionNumber: v.VersionNumber,
		IsPublished:   v.IsPublished,
		SchemaVersion: v.SchemaVersion,
		Changelog:     v.Changelog,
		PublishedAt:   v.PublishedAt,
		CreatedAt:     v.CreatedAt,
	}
	if withDsl {
		d.Dsl = v.DslJSON
	}
	return d
}

// StepTypeDetail 步骤类型描述
type StepTypeDetail struct {
	Type         string         `json:"type"`
	DisplayName  string         `json:"display_name"`
	Description  string         `json:"description,omitempty"`
	ConfigSchema map[string]any `json:"config_schema,omitempty"`
	Requires     []string       `json:"requires,omitempty"`
	Produces     []string       `json:"produces,omitempty"`
	PauseSignals []string       `json:"pause_signals,omitempty"`
}

// NewStepTypeDetail 转换步骤类型描述
func NewStepTypeDetail(d *step.Descriptor) StepTypeDetail {
	return StepTypeDetail{
		Type:         d.Type,
		DisplayName:  d.DisplayName,
		Description:  d.Description,
		ConfigSchema: d.ConfigSchema,
		Requires:     d.Requires,
		Produces:     d.Produces,
		PauseSignals: d.PauseSignals,
	}
}
