package saga

import (
	"context"
	"fmt"
	"time"
)

// CompensationState 补偿动作状态枚举（对外导出）
type CompensationState string

const (
	// CompensationStatePending 待执行（初始状态，或失败后等待重试）
	CompensationStatePending CompensationState = "Pending"
	// CompensationStateSucceeded 已成功（终态，再次补偿时跳过）
	CompensationStateSucceeded CompensationState = "Succeeded"
	// CompensationStateFailed 执行失败
	CompensationStateFailed CompensationState = "Failed"
	// CompensationStateSkipped 无可用执行器
	CompensationStateSkipped CompensationState = "Skipped"
)

// IsValid 检查状态是否有效（对外导出）
func (s CompensationState) IsValid() bool {
	switch s {
	case CompensationStatePending,
		CompensationStateSucceeded,
		CompensationStateFailed,
		CompensationStateSkipped:
		return true
	default:
		return false
	}
}

// CanTransitionTo 检查是否可以转换到目标状态（对外导出）
func (s CompensationState) CanTransitionTo(target CompensationState) bool {
	switch s {
	case CompensationStatePending:
		return target == CompensationStateSucceeded || target == CompensationStateFailed || target == CompensationStateSkipped
	case CompensationStateFailed, CompensationStateSkipped:
		// 失败或跳过的动作可在下一轮补偿中重试
		return target == CompensationStatePending
	case CompensationStateSucceeded:
		return false
	default:
		return false
	}
}

// LedgerEntry 补偿动作台账，每个动作一条
type LedgerEntry struct {
	ExecutionKey string
	RunID        string
	StepID       string
	ActionIndex  int
	ActionType   string
	Status       CompensationState
	Attempts     int
	Error        string
	UpdatedAt    time.Time
}

// BuildCompensationKey 补偿动作幂等键 {stepExecutionKey}:comp:{index}
func BuildCompensationKey(stepExecutionKey string, actionIndex int) string {
	return fmt.Sprintf("%s:comp:%d", stepExecutionKey, actionIndex)
}

// TransitionTo 状态转换，非法转换返回错误
func (e *LedgerEntry) TransitionTo(target CompensationState) error {
	if !e.Status.CanTransitionTo(target) {
		return fmt.Errorf("补偿动作 %s 状态不允许从 %s 转换到 %s", e.ExecutionKey, e.Status, target)
	}
	e.Status = target
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Ledger 补偿台账存储（对外导出）
type Ledger interface {
	// GetLedgerEntry 查询台账，不存在返回 nil, nil
	GetLedgerEntry(ctx context.Context, executionKey string) (*LedgerEntry, error)
	// SaveLedgerEntry 创建或更新台账
	SaveLedgerEntry(ctx context.Context, entry *LedgerEntry) error
	// ListLedgerEntries 查询运行的全部台账
	ListLedgerEntries(ctx context.Context, runID string) ([]*LedgerEntry, error)
}
