package engine

import (
	"context"
	"fmt"

	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage"
)

// RunHistory 运行的完整轨迹
type RunHistory struct {
	Run           *workflow.Run
	Steps         []*workflow.RunStep
	Signals       []*workflow.Signal
	Transitions   []*workflow.Transition
	Compensations []*saga.LedgerEntry
}

// GetRun 查询运行实例，不存在返回 ErrRunNotFound
func (e *Executor) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	return e.loadRun(ctx, runID)
}

// ListRuns 按条件列出运行实例
func (e *Executor) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*workflow.Run, error) {
	runs, err := e.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("查询运行列表失败: %w", err)
	}
	return runs, nil
}

// ListRunSteps 运行的步骤执行记录
func (e *Executor) ListRunSteps(ctx context.Context, runID string) ([]*workflow.RunStep, error) {
	return e.store.ListRunSteps(ctx, runID)
}

// ListSignals 运行收到的信号
func (e *Executor) ListSignals(ctx context.Context, runID string) ([]*workflow.Signal, error) {
	return e.store.ListSignals(ctx, runID)
}

// ListTransitions 运行的流转轨迹
func (e *Executor) ListTransitions(ctx context.Context, runID string) ([]*workflow.Transition, error) {
	return e.store.ListTransitions(ctx, runID)
}

// GetHistory 汇总运行、步骤、信号、流转和补偿台账
func (e *Executor) GetHistory(ctx context.Context, runID string) (*RunHistory, error) {
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	h := &RunHistory{Run: run}
	if h.Steps, err = e.store.ListRunSteps(ctx, runID); err != nil {
		return nil, fmt.Errorf("查询步骤记录失败: %w", err)
	}
	if h.Signals, err = e.store.ListSignals(ctx, runID); err != nil {
		return nil, fmt.Errorf("查询信号记录失败: %w", err)
	}
	if h.Transitions, err = e.store.ListTransitions(ctx, runID); err != nil {
		return nil, fmt.Errorf("查询流转轨迹失败: %w", err)
	}
	if h.Compensations, err = e.store.ListLedgerEntries(ctx, runID); err != nil {
		return nil, fmt.Errorf("查询补偿台账失败: %w", err)
	}
	return h, nil
}
