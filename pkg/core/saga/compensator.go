package saga

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// Report 一轮补偿的统计
type Report struct {
	RunID       string
	Succeeded   int
	Failed      int
	Skipped     int
	AlreadyDone int
}

// Compensator 补偿执行器（对外导出）
// 按结束时间倒序补偿已完成步骤；单个动作失败只记录，不中断本轮补偿
type Compensator struct {
	mu      sync.RWMutex
	actions map[string]ActionExecutor
	ledger  Ledger
}

// NewCompensator 创建补偿执行器，ledger为nil时不做幂等台账
func NewCompensator(ledger Ledger) *Compensator {
	return &Compensator{
		actions: make(map[string]ActionExecutor),
		ledger:  ledger,
	}
}

// NewDefaultCompensator 注册内置补偿动作
func NewDefaultCompensator(ledger Ledger, invoker types.ApiInvoker, publisher types.EventPublisher) *Compensator {
	c := NewCompensator(ledger)
	c.RegisterAction(ActionAPICall, APICallAction(invoker))
	c.RegisterAction(ActionWalletReverse, SimulatedAction("钱包冲正"))
	c.RegisterAction(ActionPaymentRefund, SimulatedAction("支付退款"))
	c.RegisterAction(ActionCustomEvent, CustomEventAction(publisher))
	return c
}

// RegisterAction 注册补偿动作执行器（类型不区分大小写）
func (c *Compensator) RegisterAction(actionType string, executor ActionExecutor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions[strings.ToLower(actionType)] = executor
}

func (c *Compensator) executorFor(actionType string) (ActionExecutor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	executor, ok := c.actions[strings.ToLower(actionType)]
	return executor, ok
}

// CompletedStepsNewestFirst 已完成步骤按结束时间倒序
func CompletedStepsNewestFirst(steps []*workflow.RunStep) []*workflow.RunStep {
	completed := make([]*workflow.RunStep, 0, len(steps))
	for _, s := range steps {
		if s.Status == workflow.StepStatusCompleted {
			completed = append(completed, s)
		}
	}
	sort.SliceStable(completed, func(i, j int) bool {
		a, b := completed[i].EndedAt, completed[j].EndedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return completed
}

// Compensate 执行一轮补偿
func (c *Compensator) Compensate(ctx context.Context, run *workflow.Run, steps []*workflow.RunStep, wdsl *dsl.WorkflowDsl) *Report {
	report := &Report{RunID: run.ID}
	if wdsl == nil {
		log.Printf("❌ [SAGA] 缺少DSL，无法补偿: RunID=%s", run.ID)
		return report
	}

	log.Printf("🔄 [SAGA] 开始补偿: RunID=%s, Status=%s", run.ID, run.Status)
	for _, runStep := range CompletedStepsNewestFirst(steps) {
		stepDsl, ok := wdsl.FindStep(runStep.StepID)
		if !ok || len(stepDsl.Compensation) == 0 {
			continue
		}
		log.Printf("🔄 [SAGA] 补偿步骤: RunID=%s, StepID=%s, Type=%s", run.ID, runStep.StepID, runStep.StepType)
		for i := range stepDsl.Compensation {
			c.compensateAction(ctx, run, runStep, &stepDsl.Compensation[i], i, report)
		}
	}

	log.Printf("✅ [SAGA] 补偿结束: RunID=%s, 成功=%d, 失败=%d, 跳过=%d, 已完成=%d",
		run.ID, report.Succeeded, report.Failed, report.Skipped, report.AlreadyDone)
	return report
}

func (c *Compensator) compensateAction(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction, index int, report *Report) {
	key := BuildCompensationKey(runStep.ExecutionKey, index)
	entry := c.loadEntry(ctx, key)
	if entry == nil {
		entry = &LedgerEntry{
			ExecutionKey: key,
			RunID:        run.ID,
			StepID:       runStep.StepID,
			ActionIndex:  index,
			ActionType:   action.Type,
			Status:       CompensationStatePending,
		}
	} else if entry.Status == CompensationStateSucceeded {
		report.AlreadyDone++
		return
	} else if err := entry.TransitionTo(CompensationStatePending); err != nil {
		log.Printf("⚠️ [SAGA] %v", err)
		return
	}
	entry.Attempts++

	executor, ok := c.executorFor(action.Type)
	if !ok {
		log.Printf("⚠️ [SAGA] 未知的补偿动作类型: %s, RunID=%s, StepID=%s", action.Type, run.ID, runStep.StepID)
		_ = entry.TransitionTo(CompensationStateSkipped)
		report.Skipped++
		c.saveEntry(ctx, entry)
		return
	}

	if err := safeExecute(ctx, executor, run, runStep, action); err != nil {
		log.Printf("❌ [SAGA] 补偿动作失败: Key=%s, Type=%s, Error=%v", key, action.Type, err)
		_ = entry.TransitionTo(CompensationStateFailed)
		entry.Error = err.Error()
		report.Failed++
	} else {
		log.Printf("✅ [SAGA] 补偿动作成功: Key=%s, Type=%s", key, action.Type)
		_ = entry.TransitionTo(CompensationStateSucceeded)
		entry.Error = ""
		report.Succeeded++
	}
	c.saveEntry(ctx, entry)
}

func safeExecute(ctx context.Context, executor ActionExecutor, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("补偿动作panic: %v", r)
		}
	}()
	return executor.Execute(ctx, run, runStep, action)
}

func (c *Compensator) loadEntry(ctx context.Context, key string) *LedgerEntry {
	if c.ledger == nil {
		return nil
	}
	entry, err := c.ledger.GetLedgerEntry(ctx, key)
	if err != nil {
		log.Printf("⚠️ [SAGA] 查询补偿台账失败: Key=%s, Error=%v", key, err)
		return nil
	}
	return entry
}

func (c *Compensator) saveEntry(ctx context.Context, entry *LedgerEntry) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.SaveLedgerEntry(ctx, entry); err != nil {
		log.Printf("⚠️ [SAGA] 保存补偿台账失败: Key=%s, Error=%v", entry.ExecutionKey, err)
	}
}
