package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/LENAX/workflow-engine/pkg/core/realtime"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// SignalResume 直接恢复时记录的信号名
const SignalResume = "Resume"

// Resume 以input恢复暂停的运行
func (e *Executor) Resume(ctx context.Context, runID string, input map[string]any) error {
	unlock := e.locks.Lock(runID)
	defer unlock()
	return e.resumeInternal(ctx, runID, input, SignalResume)
}

// Signal 记录信号并尝试恢复运行
// 信号总会被记录，即使运行不存在或未处于暂停状态
func (e *Executor) Signal(ctx context.Context, runID, name string, payload map[string]any) error {
	unlock := e.locks.Lock(runID)
	defer unlock()
	return e.signalLocked(ctx, runID, name, payload)
}

func (e *Executor) signalLocked(ctx context.Context, runID, name string, payload map[string]any) error {
	payloadJSON, err := workflow.EncodeContext(payload)
	if err != nil {
		return err
	}
	if err := e.store.AppendSignal(ctx, workflow.NewSignal(runID, name, payloadJSON)); err != nil {
		return fmt.Errorf("记录信号失败: %w", err)
	}
	log.Printf("📨 [Signal] 收到信号: RunID=%s, Name=%s", runID, name)

	handled, err := e.resume(ctx, runID, payload, name)
	e.notifier.Emit(ctx, nil, realtime.NewRunEvent(realtime.EventSignalReceived, runID, "", "",
		&realtime.SignalPayload{Name: name, Handled: handled}))
	return err
}

// SignalByCorrelation 按相关ID找到最近创建的活跃运行并投递信号
// 找不到运行只记录日志
func (e *Executor) SignalByCorrelation(ctx context.Context, correlationID, name string, payload map[string]any) error {
	run, err := e.store.FindLatestActiveRunByCorrelation(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("按相关ID查询运行失败: %w", err)
	}
	if run == nil {
		log.Printf("⚠️ [Signal] 相关ID没有活跃运行，信号已忽略: CorrelationID=%s, Name=%s", correlationID, name)
		return nil
	}
	return e.Signal(ctx, run.ID, name, payload)
}

func (e *Executor) resumeInternal(ctx context.Context, runID string, input map[string]any, signalName string) error {
	_, err := e.resume(ctx, runID, input, signalName)
	return err
}

// resume 完成当前暂停步骤并沿第一个流转继续，返回运行是否被恢复
func (e *Executor) resume(ctx context.Context, runID string, input map[string]any, signalName string) (bool, error) {
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return false, err
	}
	if run.Status != workflow.RunStatusPaused {
		log.Printf("⚠️ [Signal] 运行未处于暂停状态，忽略恢复: RunID=%s, Status=%s, Signal=%s", run.ID, run.Status, signalName)
		return false, nil
	}

	steps, err := e.store.ListRunSteps(ctx, run.ID)
	if err != nil {
		return false, fmt.Errorf("查询步骤记录失败: %w", err)
	}
	active := latestActiveStep(steps)
	if active == nil {
		log.Printf("⚠️ [Signal] 运行没有活跃步骤，忽略恢复: RunID=%s, Signal=%s", run.ID, signalName)
		return false, nil
	}

	wdsl, err := e.loadDsl(ctx, run.DefinitionCode, run.VersionNumber)
	if err != nil {
		return false, err
	}

	if err := run.MergeContext(input); err != nil {
		return false, err
	}
	if err := run.Resume(signalName); err != nil {
		return false, err
	}
	active.Complete()

	var next string
	if stepDsl, ok := wdsl.FindStep(active.StepID); ok {
		next, _ = stepDsl.FirstTransition()
	}
	var transition *workflow.Transition
	if next != "" {
		transition = workflow.NewTransition(run.ID, active.StepID, next, signalName)
	} else if err := run.Complete(); err != nil {
		return false, err
	}
	if err := e.store.SaveRunState(ctx, run, []*workflow.RunStep{active}, transition); err != nil {
		return false, fmt.Errorf("保存恢复状态失败: %w", err)
	}

	log.Printf("▶️ [Signal] 运行已恢复: RunID=%s, StepID=%s, Signal=%s, Next=%s", run.ID, active.StepID, signalName, next)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunResumed, run.ID, active.StepID, run.Status.String(), nil))
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventStepCompleted, run.ID, active.StepID, run.Status.String(), nil))
	if next == "" {
		log.Printf("✅ [Executor] 运行完成: RunID=%s", run.ID)
		e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunCompleted, run.ID, active.StepID, run.Status.String(), nil))
		return true, nil
	}
	return true, e.drive(ctx, run.ID, next)
}

// latestActiveStep 最近开始的Running/Paused步骤
func latestActiveStep(steps []*workflow.RunStep) *workflow.RunStep {
	var latest *workflow.RunStep
	for _, s := range steps {
		if !s.Status.IsActive() {
			continue
		}
		if latest == nil || !s.StartedAt.Before(latest.StartedAt) {
			latest = s
		}
	}
	return latest
}

// Cancel 取消未结束的运行，取消活跃步骤后执行补偿；已结束的运行忽略
func (e *Executor) Cancel(ctx context.Context, runID, reason string) error {
	unlock := e.locks.Lock(runID)
	defer unlock()

	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		log.Printf("⚠️ [Executor] 运行已结束，忽略取消: RunID=%s, Status=%s", run.ID, run.Status)
		return nil
	}

	steps, err := e.store.ListRunSteps(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("查询步骤记录失败: %w", err)
	}
	var cancelled []*workflow.RunStep
	for _, s := range steps {
		if s.Status.IsActive() {
			s.Cancel("Workflow cancelled")
			cancelled = append(cancelled, s)
		}
	}
	if err := run.Cancel(reason); err != nil {
		return err
	}
	if err := e.store.SaveRunState(ctx, run, cancelled, nil); err != nil {
		return fmt.Errorf("保存取消状态失败: %w", err)
	}
	log.Printf("🛑 [Executor] 运行已取消: RunID=%s, Reason=%s, 取消步骤数=%d", run.ID, reason, len(cancelled))
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunCancelled, run.ID, "", run.Status.String(), reason))

	wdsl, err := e.loadDsl(ctx, run.DefinitionCode, run.VersionNumber)
	if err != nil {
		log.Printf("❌ [Executor] 加载DSL失败，跳过补偿: RunID=%s, Error=%v", run.ID, err)
		return nil
	}
	e.compensate(ctx, run, wdsl)
	return nil
}

// FireTimer 触发到期定时器：运行仍暂停在登记定时器的步骤时，以超时信号恢复
func (e *Executor) FireTimer(ctx context.Context, timer *workflow.Timer) error {
	unlock := e.locks.Lock(timer.RunID)
	defer unlock()

	run, err := e.store.GetRun(ctx, timer.RunID)
	if err != nil {
		return fmt.Errorf("查询运行实例失败: %w", err)
	}
	if run == nil || run.Status != workflow.RunStatusPaused || run.CurrentStepID != timer.StepID {
		log.Printf("⏭️ [Timer] 定时器已失效，跳过: TimerID=%s, RunID=%s, StepID=%s", timer.ID, timer.RunID, timer.StepID)
		return nil
	}
	return e.signalLocked(ctx, timer.RunID, timer.SignalName, map[string]any{
		"timedOut": true,
		"stepId":   timer.StepID,
	})
}
