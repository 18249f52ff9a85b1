package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run 工作流运行实例（对外导出）
// 一次Definition+Version的执行；只由Executor修改
type Run struct {
	ID             string
	DefinitionCode string
	VersionNumber  int
	Status         RunStatus
	ContextJSON    string
	CorrelationID  string
	CurrentStepID  string // 暂停所在步骤
	ResumeSignal   string // 最近一次触发恢复的信号名
	Error          string
	CancelReason   string
	Version        int64 // 乐观锁版本号
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// NewRun 创建运行实例（初始状态Running）
func NewRun(definitionCode string, versionNumber int, contextJSON, correlationID string) *Run {
	if contextJSON == "" {
		contextJSON = "{}"
	}
	now := time.Now().UTC()
	return &Run{
		ID:             uuid.NewString(),
		DefinitionCode: definitionCode,
		VersionNumber:  versionNumber,
		Status:         RunStatusRunning,
		ContextJSON:    contextJSON,
		CorrelationID:  correlationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *Run) transition(target RunStatus) error {
	if !r.Status.CanTransitionTo(target) {
		return fmt.Errorf("运行 %s 状态不允许从 %s 转换到 %s", r.ID, r.Status, target)
	}
	r.Status = target
	r.UpdatedAt = time.Now().UTC()
	if target.IsTerminal() {
		t := r.UpdatedAt
		r.CompletedAt = &t
	}
	return nil
}

// Pause 暂停在指定步骤
func (r *Run) Pause(stepID string) error {
	if err := r.transition(RunStatusPaused); err != nil {
		return err
	}
	r.CurrentStepID = stepID
	return nil
}

// Resume 由信号恢复执行
func (r *Run) Resume(signalName string) error {
	if err := r.transition(RunStatusRunning); err != nil {
		return err
	}
	r.ResumeSignal = signalName
	return nil
}

// Complete 标记完成
func (r *Run) Complete() error {
	if err := r.transition(RunStatusCompleted); err != nil {
		return err
	}
	r.CurrentStepID = ""
	return nil
}

// Fail 标记失败
func (r *Run) Fail(message string) error {
	if err := r.transition(RunStatusFailed); err != nil {
		return err
	}
	r.Error = message
	return nil
}

// Cancel 标记取消
func (r *Run) Cancel(reason string) error {
	if err := r.transition(RunStatusCancelled); err != nil {
		return err
	}
	r.CancelReason = reason
	return nil
}

// ContextMap 解析ContextJSON
func (r *Run) ContextMap() (map[string]any, error) {
	return DecodeContext(r.ContextJSON)
}

// MergeContext 将patch按key覆盖合并到ContextJSON（不删除已有key）
func (r *Run) MergeContext(patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	merged, err := MergeContext(r.ContextJSON, patch)
	if err != nil {
		return fmt.Errorf("合并运行 %s 上下文失败: %w", r.ID, err)
	}
	r.ContextJSON = merged
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// RunStep 一个DSL步骤在运行中的一次执行尝试（对外导出）
type RunStep struct {
	ID           string
	RunID        string
	StepID       string
	StepType     string
	Status       StepStatus
	Attempts     int
	ExecutionKey string
	StartedAt    time.Time
	EndedAt      *time.Time
	Error        string
}

// BuildExecutionKey 生成步骤执行幂等键 {runId}:{stepId}:{attempt}
func BuildExecutionKey(runID, stepID string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", runID, stepID, attempt)
}

// NewRunStep 创建步骤执行记录（初始状态Running）
func NewRunStep(runID, stepID, stepType string, attempt int) *RunStep {
	return &RunStep{
		ID:           uuid.NewString(),
		RunID:        runID,
		StepID:       stepID,
		StepType:     stepType,
		Status:       StepStatusRunning,
		Attempts:     attempt,
		ExecutionKey: BuildExecutionKey(runID, stepID, attempt),
		StartedAt:    time.Now().UTC(),
	}
}

func (s *RunStep) finish(status StepStatus, errMsg string) {
	now := time.Now().UTC()
	s.Status = status
	s.EndedAt = &now
	if errMsg != "" {
		s.Error = errMsg
	}
}

// Complete 标记步骤完成
func (s *RunStep) Complete() {
	s.finish(StepStatusCompleted, "")
}

// Fail 标记步骤失败
func (s *RunStep) Fail(message string) {
	s.finish(StepStatusFailed, message)
}

// Cancel 标记步骤取消
func (s *RunStep) Cancel(message string) {
	s.finish(StepStatusCancelled, message)
}

// Pause 标记步骤暂停（不设置结束时间）
func (s *RunStep) Pause() {
	s.Status = StepStatusPaused
}

// Signal 外部信号审计记录（只追加）
type Signal struct {
	ID          string
	RunID       string
	Name        string
	PayloadJSON string
	HandledAt   time.Time
}

// NewSignal 创建信号记录
func NewSignal(runID, name, payloadJSON string) *Signal {
	if payloadJSON == "" {
		payloadJSON = "{}"
	}
	return &Signal{
		ID:          uuid.NewString(),
		RunID:       runID,
		Name:        name,
		PayloadJSON: payloadJSON,
		HandledAt:   time.Now().UTC(),
	}
}

// Transition 步骤流转轨迹
type Transition struct {
	ID         string
	RunID      string
	FromStepID string
	ToStepID   string
	Reason     string
	CreatedAt  time.Time
}

// NewTransition 创建流转轨迹
func NewTransition(runID, from, to, reason string) *Transition {
	return &Transition{
		ID:         uuid.NewString(),
		RunID:      runID,
		FromStepID: from,
		ToStepID:   to,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
}

// Timer 等待超时定时器
type Timer struct {
	ID         string
	RunID      string
	StepID     string
	SignalName string
	DueAt      time.Time
	FiredAt    *time.Time
}

// NewTimer 创建定时器
func NewTimer(runID, stepID, signalName string, dueAt time.Time) *Timer {
	return &Timer{
		ID:         uuid.NewString(),
		RunID:      runID,
		StepID:     stepID,
		SignalName: signalName,
		DueAt:      dueAt.UTC(),
	}
}
