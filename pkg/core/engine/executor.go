package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/cache"
	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/realtime"
	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/step"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage"
)

// DefaultMaxChainSteps 单次调用最多推进的步骤数
const DefaultMaxChainSteps = 1000

// Executor 工作流执行器（对外导出）
// 所有变更操作按运行ID串行，运行行另有乐观锁版本号
type Executor struct {
	store         storage.Store
	registry      *step.Registry
	compensator   *saga.Compensator
	notifier      *Notifier
	locks         *runLocker
	dslCache      cache.ResultCache
	dslTTL        time.Duration
	maxChainSteps int
	stepTimeout   time.Duration
}

// ExecutorOption 执行器选项
type ExecutorOption func(*Executor)

// WithNotifier 设置状态通知器
func WithNotifier(n *Notifier) ExecutorOption {
	return func(e *Executor) { e.notifier = n }
}

// WithDslCache 缓存已解析的DSL，key为 code:version
func WithDslCache(c cache.ResultCache, ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.dslCache = c
		e.dslTTL = ttl
	}
}

// WithMaxChainSteps 设置单次调用最多推进的步骤数
func WithMaxChainSteps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxChainSteps = n
		}
	}
}

// WithStepTimeout 设置单个步骤处理器的超时
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.stepTimeout = d }
}

// NewExecutor 创建执行器，compensator为nil时使用不含动作的补偿器
func NewExecutor(store storage.Store, registry *step.Registry, compensator *saga.Compensator, opts ...ExecutorOption) *Executor {
	if compensator == nil {
		compensator = saga.NewCompensator(store)
	}
	e := &Executor{
		store:         store,
		registry:      registry,
		compensator:   compensator,
		locks:         newRunLocker(),
		maxChainSteps: DefaultMaxChainSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry 步骤类型注册表
func (e *Executor) Registry() *step.Registry {
	return e.registry
}

// StartRunRequest 启动运行请求
type StartRunRequest struct {
	DefinitionCode string
	VersionNumber  int // 0 表示最新已发布版本
	Context        map[string]any
	CorrelationID  string
}

// StartRun 创建运行实例并从起始步骤开始执行，返回执行后的运行实例
func (e *Executor) StartRun(ctx context.Context, req StartRunRequest) (*workflow.Run, error) {
	if req.DefinitionCode == "" {
		return nil, fmt.Errorf("工作流编码不能为空")
	}
	def, err := e.store.GetDefinitionByCode(ctx, req.DefinitionCode)
	if err != nil {
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, req.DefinitionCode)
	}

	var version *workflow.DefinitionVersion
	if req.VersionNumber > 0 {
		version, err = e.store.GetVersion(ctx, def.ID, req.VersionNumber)
		if err != nil {
			return nil, fmt.Errorf("查询工作流版本失败: %w", err)
		}
		if version == nil {
			return nil, fmt.Errorf("%w: %s v%d", ErrDefinitionNotFound, req.DefinitionCode, req.VersionNumber)
		}
		if !version.IsPublished {
			return nil, fmt.Errorf("%w: %s v%d", ErrVersionNotPublished, req.DefinitionCode, req.VersionNumber)
		}
	} else {
		version, err = e.store.GetLatestPublishedVersion(ctx, def.ID)
		if err != nil {
			return nil, fmt.Errorf("查询已发布版本失败: %w", err)
		}
		if version == nil {
			return nil, fmt.Errorf("%w: %s 没有已发布版本", ErrVersionNotPublished, req.DefinitionCode)
		}
	}

	if _, err := e.loadDsl(ctx, def.Code, version.VersionNumber); err != nil {
		return nil, err
	}

	contextJSON, err := workflow.EncodeContext(req.Context)
	if err != nil {
		return nil, err
	}
	run := workflow.NewRun(def.Code, version.VersionNumber, contextJSON, req.CorrelationID)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("创建运行实例失败: %w", err)
	}
	log.Printf("🔄 [Executor] 运行已创建: RunID=%s, Definition=%s, Version=%d, CorrelationID=%s",
		run.ID, run.DefinitionCode, run.VersionNumber, run.CorrelationID)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunStarted, run.ID, "", run.Status.String(), nil))

	if err := e.ExecuteStep(ctx, run.ID, dsl.StartAlias); err != nil {
		return run, err
	}
	return e.GetRun(ctx, run.ID)
}

// ExecuteStep 执行运行中的指定步骤，并沿流转继续推进直到暂停、结束或失败
// stepID 为 "start" 时解析为DSL起始步骤；步骤处理失败记录在运行状态上，不以错误返回
func (e *Executor) ExecuteStep(ctx context.Context, runID, stepID string) error {
	unlock := e.locks.Lock(runID)
	defer unlock()

	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Status.IsTerminal() {
		wdsl, err := e.loadDsl(ctx, run.DefinitionCode, run.VersionNumber)
		if err != nil {
			return err
		}
		resolved := wdsl.ResolveStepID(stepID)
		if _, ok := wdsl.FindStep(resolved); !ok {
			return fmt.Errorf("%w: %s", ErrStepNotFound, resolved)
		}
		if err := e.supersedeActiveSteps(ctx, run); err != nil {
			return err
		}
	}
	return e.drive(ctx, runID, stepID)
}

// supersedeActiveSteps 重新派发前取消仍处于活跃状态的步骤，保证每个运行最多一个活跃步骤
func (e *Executor) supersedeActiveSteps(ctx context.Context, run *workflow.Run) error {
	steps, err := e.store.ListRunSteps(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("查询步骤记录失败: %w", err)
	}

	var active []*workflow.RunStep
	for _, s := range steps {
		if s.Status.IsActive() {
			s.Cancel("被重新派发取代")
			active = append(active, s)
		}
	}
	if len(active) == 0 && run.Status != workflow.RunStatusPaused {
		return nil
	}
	if run.Status == workflow.RunStatusPaused {
		if err := run.Resume("Redispatch"); err != nil {
			return err
		}
	}
	if err := e.store.SaveRunState(ctx, run, active, nil); err != nil {
		return fmt.Errorf("保存运行状态失败: %w", err)
	}
	log.Printf("⚠️ [Executor] 重新派发，已取消 %d 个活跃步骤: RunID=%s", len(active), run.ID)
	return nil
}

// dispatchQueue 单次调用内待执行的步骤
type dispatchQueue []string

func (q *dispatchQueue) push(stepID string) {
	*q = append(*q, stepID)
}

func (q *dispatchQueue) pop() (string, bool) {
	if len(*q) == 0 {
		return "", false
	}
	head := (*q)[0]
	*q = (*q)[1:]
	return head, true
}

// drive 从指定步骤开始推进运行，调用方需持有运行锁
func (e *Executor) drive(ctx context.Context, runID, stepID string) error {
	queue := dispatchQueue{stepID}
	hops := 0
	for {
		next, ok := queue.pop()
		if !ok {
			return nil
		}
		if hops >= e.maxChainSteps {
			return e.failRun(ctx, runID, next, fmt.Sprintf("超出单次调用最大步骤数: %d", e.maxChainSteps))
		}
		hops++

		following, err := e.executeOne(ctx, runID, next)
		if err != nil {
			return err
		}
		if following != "" {
			queue.push(following)
		}
	}
}

// executeOne 执行一个步骤，返回下一个待执行的步骤ID
func (e *Executor) executeOne(ctx context.Context, runID, stepID string) (string, error) {
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if run.Status.IsTerminal() {
		log.Printf("⚠️ [Executor] 运行已结束，跳过步骤: RunID=%s, StepID=%s, Status=%s", run.ID, stepID, run.Status)
		return "", nil
	}

	wdsl, err := e.loadDsl(ctx, run.DefinitionCode, run.VersionNumber)
	if err != nil {
		return "", err
	}
	resolved := wdsl.ResolveStepID(stepID)
	stepDsl, ok := wdsl.FindStep(resolved)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrStepNotFound, resolved)
	}

	desc, ok := e.registry.GetStepType(stepDsl.Type)
	if !ok {
		return "", e.failRun(ctx, run.ID, stepDsl.ID, fmt.Sprintf("未找到步骤类型处理器: %s", stepDsl.Type))
	}

	count, err := e.store.CountRunSteps(ctx, run.ID, stepDsl.ID)
	if err != nil {
		return "", fmt.Errorf("统计步骤记录失败: %w", err)
	}
	runStep := workflow.NewRunStep(run.ID, stepDsl.ID, stepDsl.Type, count+1)
	if err := e.store.InsertRunStep(ctx, runStep); err != nil {
		return "", fmt.Errorf("保存步骤记录失败: %w", err)
	}
	log.Printf("🔄 [Executor] 开始执行步骤: RunID=%s, StepID=%s, Type=%s, Attempt=%d",
		run.ID, stepDsl.ID, stepDsl.Type, runStep.Attempts)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventStepStarted, run.ID, stepDsl.ID, run.Status.String(), nil))

	result := e.invoke(ctx, desc.Handler, run, runStep, stepDsl)

	switch {
	case result.IsPaused:
		return "", e.onPaused(ctx, run, runStep, result)
	case result.IsSuccess:
		return e.onSuccess(ctx, run, runStep, result)
	default:
		return "", e.onFailure(ctx, run, runStep, wdsl, result)
	}
}

// invoke 调用步骤处理器，panic 转为失败结果
func (e *Executor) invoke(ctx context.Context, handler step.Handler, run *workflow.Run, runStep *workflow.RunStep, stepDsl *dsl.StepDsl) (result *step.Result) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [Executor] 步骤处理器panic: RunID=%s, StepID=%s, Panic=%v", run.ID, stepDsl.ID, r)
			result = step.Failure(fmt.Sprintf("步骤处理器panic: %v", r))
		}
	}()
	result = handler.Execute(ctx, run, runStep, stepDsl)
	if result == nil {
		result = step.Failure("步骤处理器未返回结果")
	}
	return result
}

func (e *Executor) onPaused(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, result *step.Result) error {
	if err := run.MergeContext(result.OutputContext); err != nil {
		return err
	}
	runStep.Pause()
	if err := run.Pause(runStep.StepID); err != nil {
		return err
	}
	if err := e.store.SaveRunState(ctx, run, []*workflow.RunStep{runStep}, nil); err != nil {
		return fmt.Errorf("保存暂停状态失败: %w", err)
	}
	log.Printf("⏸️ [Executor] 运行已暂停: RunID=%s, StepID=%s", run.ID, runStep.StepID)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunPaused, run.ID, runStep.StepID, run.Status.String(), nil))
	return nil
}

func (e *Executor) onSuccess(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, result *step.Result) (string, error) {
	if err := run.MergeContext(result.OutputContext); err != nil {
		return "", err
	}
	runStep.Complete()

	next := result.NextStepID
	var transition *workflow.Transition
	if next != "" {
		transition = workflow.NewTransition(run.ID, runStep.StepID, next, "StepCompleted")
	} else if err := run.Complete(); err != nil {
		return "", err
	}
	if err := e.store.SaveRunState(ctx, run, []*workflow.RunStep{runStep}, transition); err != nil {
		return "", fmt.Errorf("保存步骤完成状态失败: %w", err)
	}

	log.Printf("✅ [Executor] 步骤完成: RunID=%s, StepID=%s, Next=%s", run.ID, runStep.StepID, next)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventStepCompleted, run.ID, runStep.StepID, run.Status.String(), nil))
	if next == "" {
		log.Printf("✅ [Executor] 运行完成: RunID=%s", run.ID)
		e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunCompleted, run.ID, runStep.StepID, run.Status.String(), nil))
	}
	return next, nil
}

func (e *Executor) onFailure(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, wdsl *dsl.WorkflowDsl, result *step.Result) error {
	runStep.Fail(result.Error)
	if err := run.Fail(result.Error); err != nil {
		return err
	}
	if err := e.store.SaveRunState(ctx, run, []*workflow.RunStep{runStep}, nil); err != nil {
		return fmt.Errorf("保存步骤失败状态失败: %w", err)
	}

	log.Printf("❌ [Executor] 步骤失败: RunID=%s, StepID=%s, Attempt=%d, Error=%s",
		run.ID, runStep.StepID, runStep.Attempts, result.Error)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventStepFailed, run.ID, runStep.StepID, run.Status.String(),
		&realtime.StepFailedPayload{StepType: runStep.StepType, Attempt: runStep.Attempts, Error: result.Error}))
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunFailed, run.ID, runStep.StepID, run.Status.String(), result.Error))

	e.compensate(ctx, run, wdsl)
	return nil
}

// failRun 不经过步骤直接把运行标记为失败，并补偿已完成的步骤
func (e *Executor) failRun(ctx context.Context, runID, stepID, message string) error {
	run, err := e.loadRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return nil
	}
	if err := run.Fail(message); err != nil {
		return err
	}
	if err := e.store.SaveRunState(ctx, run, nil, nil); err != nil {
		return fmt.Errorf("保存运行失败状态失败: %w", err)
	}
	log.Printf("❌ [Executor] 运行失败: RunID=%s, StepID=%s, Error=%s", run.ID, stepID, message)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventRunFailed, run.ID, stepID, run.Status.String(), message))

	wdsl, err := e.loadDsl(ctx, run.DefinitionCode, run.VersionNumber)
	if err != nil {
		log.Printf("❌ [Executor] 加载DSL失败，跳过补偿: RunID=%s, Error=%v", run.ID, err)
		return nil
	}
	e.compensate(ctx, run, wdsl)
	return nil
}

// compensate 对运行执行一轮补偿，失败只记录日志
func (e *Executor) compensate(ctx context.Context, run *workflow.Run, wdsl *dsl.WorkflowDsl) {
	steps, err := e.store.ListRunSteps(ctx, run.ID)
	if err != nil {
		log.Printf("❌ [Executor] 补偿前查询步骤记录失败: RunID=%s, Error=%v", run.ID, err)
		return
	}
	report := e.compensator.Compensate(ctx, run, steps, wdsl)
	e.notifier.Emit(ctx, run, realtime.NewRunEvent(realtime.EventCompensationFinished, run.ID, "", run.Status.String(),
		&realtime.CompensationPayload{
			Succeeded:   report.Succeeded,
			Failed:      report.Failed,
			Skipped:     report.Skipped,
			AlreadyDone: report.AlreadyDone,
		}))
}

// loadRun 加载运行实例，不存在返回 ErrRunNotFound
func (e *Executor) loadRun(ctx context.Context, runID string) (*workflow.Run, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("查询运行实例失败: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// loadDsl 加载并解析运行绑定的定义版本
func (e *Executor) loadDsl(ctx context.Context, code string, versionNumber int) (*dsl.WorkflowDsl, error) {
	key := fmt.Sprintf("%s:%d", code, versionNumber)
	if e.dslCache != nil {
		if v, ok := e.dslCache.Get(key); ok {
			if w, ok := v.(*dsl.WorkflowDsl); ok {
				return w, nil
			}
		}
	}

	def, err := e.store.GetDefinitionByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, code)
	}
	version, err := e.store.GetVersion(ctx, def.ID, versionNumber)
	if err != nil {
		return nil, fmt.Errorf("查询工作流版本失败: %w", err)
	}
	if version == nil {
		return nil, fmt.Errorf("%w: %s v%d", ErrDefinitionNotFound, code, versionNumber)
	}
	w, err := dsl.Parse(version.DslJSON)
	if err != nil {
		return nil, fmt.Errorf("工作流 %s v%d: %w", code, versionNumber, err)
	}

	if e.dslCache != nil {
		if err := e.dslCache.Set(key, w, e.dslTTL); err != nil {
			log.Printf("⚠️ [Executor] 缓存DSL失败: Key=%s, Error=%v", key, err)
		}
	}
	return w, nil
}
