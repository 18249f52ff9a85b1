package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/realtime"
	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/step"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/eventbus"
	"github.com/LENAX/workflow-engine/pkg/plugin"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlite"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlstore"
)

type stubInvoker struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubInvoker) Invoke(_ context.Context, methodID string, _ *types.ApiRequest) (*types.ApiResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, methodID)
	return &types.ApiResponse{StatusCode: 200, Body: map[string]any{"ok": true}}, nil
}

func (s *stubInvoker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// 测试用步骤类型
func testStepTypes() []*step.Descriptor {
	return []*step.Descriptor{
		{
			Type: "FailStep",
			Handler: step.HandlerFunc(func(_ context.Context, _ *workflow.Run, _ *workflow.RunStep, s *dsl.StepDsl) *step.Result {
				return step.Failure(s.ConfigString("message"))
			}),
		},
		{
			Type: "PanicStep",
			Handler: step.HandlerFunc(func(context.Context, *workflow.Run, *workflow.RunStep, *dsl.StepDsl) *step.Result {
				panic("handler exploded")
			}),
		},
	}
}

type testEnv struct {
	store   *sqlstore.Store
	engine  *Engine
	exec    *Executor
	invoker *stubInvoker
}

func setupEngine(t *testing.T, mutate ...func(*Options)) *testEnv {
	s, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	invoker := &stubInvoker{}
	opts := Options{
		Store:          s,
		Invoker:        invoker,
		ExtraStepTypes: testStepTypes(),
		TimersEnabled:  true,
		TimerSweepSpec: "@every 1h",
	}
	for _, m := range mutate {
		m(&opts)
	}
	eng, err := New(opts)
	require.NoError(t, err)
	return &testEnv{store: s, engine: eng, exec: eng.Executor(), invoker: invoker}
}

// publish 保存并发布一个定义版本
func (env *testEnv) publish(t *testing.T, code, dslJSON string) {
	ctx := context.Background()
	def, err := env.store.GetDefinitionByCode(ctx, code)
	require.NoError(t, err)
	if def == nil {
		def = workflow.NewDefinition(code, code, "")
		require.NoError(t, env.store.SaveDefinition(ctx, def))
	}
	n, err := env.store.NextVersionNumber(ctx, def.ID)
	require.NoError(t, err)
	v := workflow.NewDefinitionVersion(def.ID, n, dslJSON, "")
	v.Publish()
	require.NoError(t, env.store.SaveVersion(ctx, v))
}

func (env *testEnv) start(t *testing.T, code string, vars map[string]any) *workflow.Run {
	run, err := env.exec.StartRun(context.Background(), StartRunRequest{DefinitionCode: code, Context: vars})
	require.NoError(t, err)
	return run
}

func (env *testEnv) steps(t *testing.T, runID string) []*workflow.RunStep {
	steps, err := env.exec.ListRunSteps(context.Background(), runID)
	require.NoError(t, err)
	return steps
}

func contextOf(t *testing.T, run *workflow.Run) map[string]any {
	m, err := run.ContextMap()
	require.NoError(t, err)
	return m
}

const linearDsl = `{
  "startAt": "a",
  "steps": [
    {"id": "a", "type": "PassStep", "config": {"set": {"a": 1}}, "transitions": [{"to": "b"}]},
    {"id": "b", "type": "PassStep", "config": {"set": {"b": 2}}, "transitions": [{"to": "c"}]},
    {"id": "c", "type": "PassStep", "config": {"set": {"a": 3}}, "transitions": [{"to": "end"}]},
    {"id": "end", "type": "EndStep"}
  ]
}`

const formDsl = `{
  "startAt": "step1",
  "steps": [
    {"id": "step1", "type": "WaitForEvent", "config": {"eventName": "FormSubmitted"}, "transitions": [{"to": "step2"}]},
    {"id": "step2", "type": "EndStep"}
  ]
}`

func TestExecuteStep_LinearRunCompletes(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "linear", linearDsl)

	run := env.start(t, "linear", map[string]any{"keep": "me"})
	assert.Equal(t, workflow.RunStatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)

	steps := env.steps(t, run.ID)
	require.Len(t, steps, 4)
	keys := map[string]bool{}
	for _, s := range steps {
		assert.Equal(t, workflow.StepStatusCompleted, s.Status, s.StepID)
		assert.Equal(t, 1, s.Attempts, s.StepID)
		assert.NotNil(t, s.EndedAt)
		keys[s.ExecutionKey] = true
	}
	assert.Len(t, keys, 4)

	// 后写覆盖，不删除
	ctxMap := contextOf(t, run)
	assert.Equal(t, "me", ctxMap["keep"])
	assert.EqualValues(t, 3, ctxMap["a"])
	assert.EqualValues(t, 2, ctxMap["b"])

	transitions, err := env.exec.ListTransitions(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, transitions, 3)
}

func TestExecuteStep_PauseAndSignalResume(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "form", formDsl)
	ctx := context.Background()

	run := env.start(t, "form", nil)
	assert.Equal(t, workflow.RunStatusPaused, run.Status)
	assert.Equal(t, "step1", run.CurrentStepID)
	steps := env.steps(t, run.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, workflow.StepStatusPaused, steps[0].Status)

	require.NoError(t, env.exec.Signal(ctx, run.ID, "FormSubmitted", map[string]any{"submissionId": "sub-1"}))

	run, err := env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusCompleted, run.Status)
	assert.Equal(t, "FormSubmitted", run.ResumeSignal)
	assert.Equal(t, "sub-1", contextOf(t, run)["submissionId"])

	steps = env.steps(t, run.ID)
	require.Len(t, steps, 2)
	for _, s := range steps {
		assert.Equal(t, workflow.StepStatusCompleted, s.Status)
	}

	signals, err := env.exec.ListSignals(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestSignal_AlwaysRecorded(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "linear", linearDsl)
	ctx := context.Background()

	// 运行不存在：仍记录信号
	err := env.exec.Signal(ctx, "no-such-run", "Ping", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
	signals, err := env.exec.ListSignals(ctx, "no-such-run")
	require.NoError(t, err)
	assert.Len(t, signals, 1)

	// 运行已完成：记录信号但不改变状态
	run := env.start(t, "linear", nil)
	require.NoError(t, env.exec.Signal(ctx, run.ID, "Ping", map[string]any{"x": 1}))
	require.NoError(t, env.exec.Resume(ctx, run.ID, map[string]any{"x": 2}))
	reloaded, err := env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusCompleted, reloaded.Status)
	assert.NotContains(t, contextOf(t, reloaded), "x")
	signals, err = env.exec.ListSignals(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestExecuteStep_RedispatchIncrementsAttempts(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "form", formDsl)
	ctx := context.Background()

	run := env.start(t, "form", nil)
	require.NoError(t, env.exec.ExecuteStep(ctx, run.ID, "step1"))

	steps := env.steps(t, run.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Attempts)
	assert.Equal(t, 2, steps[1].Attempts)
	assert.NotEqual(t, steps[0].ExecutionKey, steps[1].ExecutionKey)
	assert.Equal(t, workflow.StepStatusCancelled, steps[0].Status)
	assert.Equal(t, workflow.StepStatusPaused, steps[1].Status)

	run, err := env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusPaused, run.Status)

	// 恢复的是最近一次暂停的步骤
	require.NoError(t, env.exec.Resume(ctx, run.ID, map[string]any{"approved": true}))
	steps = env.steps(t, run.ID)
	require.Len(t, steps, 3)
	assert.Equal(t, workflow.StepStatusCompleted, steps[1].Status)
}

func TestExecuteStep_FailureCompensatesCompletedStepsOnce(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "saga", `{
	  "startAt": "a",
	  "steps": [
	    {"id": "a", "type": "PassStep", "transitions": [{"to": "b"}],
	     "compensation": [{"type": "apicall", "config": {"methodId": "undo-a"}}]},
	    {"id": "b", "type": "FailStep", "config": {"message": "declined"}}
	  ]
	}`)
	ctx := context.Background()

	run := env.start(t, "saga", nil)
	assert.Equal(t, workflow.RunStatusFailed, run.Status)
	assert.Equal(t, "declined", run.Error)

	steps := env.steps(t, run.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, workflow.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, workflow.StepStatusFailed, steps[1].Status)
	assert.Equal(t, "declined", steps[1].Error)

	assert.Equal(t, []string{"undo-a"}, env.invoker.Calls())

	history, err := env.exec.GetHistory(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, history.Compensations, 1)
	assert.Equal(t, saga.CompensationStateSucceeded, history.Compensations[0].Status)

	// 已结束的运行取消为空操作，不会重复补偿
	require.NoError(t, env.exec.Cancel(ctx, run.ID, "late"))
	assert.Len(t, env.invoker.Calls(), 1)
}

func TestExecuteStep_StructuralErrors(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "linear", linearDsl)
	env.publish(t, "unknown", `{"startAt": "x", "steps": [{"id": "x", "type": "NoSuchType"}]}`)
	ctx := context.Background()

	err := env.exec.ExecuteStep(ctx, "missing-run", "start")
	assert.ErrorIs(t, err, ErrRunNotFound)

	// 未知步骤类型：运行失败，不创建步骤记录
	run := env.start(t, "unknown", nil)
	assert.Equal(t, workflow.RunStatusFailed, run.Status)
	assert.Equal(t, "未找到步骤类型处理器: NoSuchType", run.Error)
	assert.Empty(t, env.steps(t, run.ID))

	// DSL中不存在的步骤：返回错误，运行不变
	run = env.start(t, "linear", nil)
	err = env.exec.ExecuteStep(ctx, run.ID, "ghost")
	assert.NoError(t, err, "已完成的运行跳过执行")

	_, err = env.exec.StartRun(ctx, StartRunRequest{DefinitionCode: "nope"})
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
	_, err = env.exec.StartRun(ctx, StartRunRequest{DefinitionCode: "linear", VersionNumber: 9})
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestExecuteStep_UnknownStepIDOnActiveRun(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "form", formDsl)
	ctx := context.Background()

	run := env.start(t, "form", nil)
	err := env.exec.ExecuteStep(ctx, run.ID, "ghost")
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestStartRun_RequiresPublishedVersion(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	def := workflow.NewDefinition("draft", "draft", "")
	require.NoError(t, env.store.SaveDefinition(ctx, def))
	require.NoError(t, env.store.SaveVersion(ctx, workflow.NewDefinitionVersion(def.ID, 1, linearDsl, "")))

	_, err := env.exec.StartRun(ctx, StartRunRequest{DefinitionCode: "draft"})
	assert.ErrorIs(t, err, ErrVersionNotPublished)
	_, err = env.exec.StartRun(ctx, StartRunRequest{DefinitionCode: "draft", VersionNumber: 1})
	assert.ErrorIs(t, err, ErrVersionNotPublished)
}

func TestExecuteStep_HandlerPanicBecomesFailure(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "panic", `{"startAt": "p", "steps": [{"id": "p", "type": "PanicStep"}]}`)

	run := env.start(t, "panic", nil)
	assert.Equal(t, workflow.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "handler exploded")
	steps := env.steps(t, run.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, workflow.StepStatusFailed, steps[0].Status)
}

func TestExecuteStep_ChainLimit(t *testing.T) {
	env := setupEngine(t, func(o *Options) { o.MaxChainSteps = 5 })
	env.publish(t, "loop", `{
	  "startAt": "a",
	  "steps": [
	    {"id": "a", "type": "PassStep", "transitions": [{"to": "b"}],
	     "compensation": [{"type": "apicall", "config": {"methodId": "undo-a"}}]},
	    {"id": "b", "type": "PassStep", "transitions": [{"to": "a"}]}
	  ]
	}`)

	run := env.start(t, "loop", nil)
	assert.Equal(t, workflow.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "超出单次调用最大步骤数")
	assert.Len(t, env.steps(t, run.ID), 5)

	// a 完成了三次，每次完成各补偿一次
	assert.Equal(t, []string{"undo-a", "undo-a", "undo-a"}, env.invoker.Calls())
	history, err := env.exec.GetHistory(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, history.Compensations, 3)
}

func TestExecuteStep_MissingHandlerMidChainCompensates(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "broken", `{
	  "startAt": "a",
	  "steps": [
	    {"id": "a", "type": "PassStep", "transitions": [{"to": "x"}],
	     "compensation": [{"type": "apicall", "config": {"methodId": "undo-a"}}]},
	    {"id": "x", "type": "NoSuchType"}
	  ]
	}`)

	run := env.start(t, "broken", nil)
	assert.Equal(t, workflow.RunStatusFailed, run.Status)
	assert.Equal(t, "未找到步骤类型处理器: NoSuchType", run.Error)

	// 缺少处理器的步骤不创建记录
	steps := env.steps(t, run.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, "a", steps[0].StepID)
	assert.Equal(t, []string{"undo-a"}, env.invoker.Calls())

	require.NoError(t, env.exec.Cancel(context.Background(), run.ID, "late"))
	assert.Len(t, env.invoker.Calls(), 1)
}

func TestCancel_PausedRun(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "form", `{
	  "startAt": "pay",
	  "steps": [
	    {"id": "pay", "type": "PassStep", "transitions": [{"to": "wait"}],
	     "compensation": [{"type": "paymentrefund"}, {"type": "apicall", "config": {"methodId": "refund"}}]},
	    {"id": "wait", "type": "WaitForEvent", "config": {"eventName": "Approved"}}
	  ]
	}`)
	ctx := context.Background()

	run := env.start(t, "form", nil)
	require.Equal(t, workflow.RunStatusPaused, run.Status)

	require.NoError(t, env.exec.Cancel(ctx, run.ID, "user request"))
	run, err := env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusCancelled, run.Status)
	assert.Equal(t, "user request", run.CancelReason)

	steps := env.steps(t, run.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, workflow.StepStatusCancelled, steps[1].Status)
	assert.Equal(t, "Workflow cancelled", steps[1].Error)
	assert.Equal(t, []string{"refund"}, env.invoker.Calls())

	// 幂等
	require.NoError(t, env.exec.Cancel(ctx, run.ID, "again"))
	run, err = env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "user request", run.CancelReason)
	assert.Len(t, env.invoker.Calls(), 1)
}

func TestSignalByCorrelation(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "form", formDsl)
	ctx := context.Background()

	run, err := env.exec.StartRun(ctx, StartRunRequest{DefinitionCode: "form", CorrelationID: "order-1"})
	require.NoError(t, err)

	// 没有匹配运行时静默返回
	require.NoError(t, env.exec.SignalByCorrelation(ctx, "order-x", "FormSubmitted", nil))

	require.NoError(t, env.exec.SignalByCorrelation(ctx, "order-1", "FormSubmitted", map[string]any{"submissionId": "s"}))
	run, err = env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusCompleted, run.Status)
}

func TestSignal_ConcurrentSignalsResumeOnce(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "form", formDsl)
	ctx := context.Background()
	run := env.start(t, "form", nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, env.exec.Signal(ctx, run.ID, "FormSubmitted", map[string]any{"n": i}))
		}(i)
	}
	wg.Wait()

	signals, err := env.exec.ListSignals(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, signals, 5)

	// step1 只完成一次，step2 只执行一次
	steps := env.steps(t, run.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, 0, env.exec.locks.size())
}

func TestEngine_FormSubmittedEventResumesRun(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "form", formDsl)
	ctx := context.Background()
	require.NoError(t, env.engine.Start(ctx))
	defer env.engine.Stop()

	run := env.start(t, "form", nil)
	require.Equal(t, workflow.RunStatusPaused, run.Status)

	require.NoError(t, env.engine.Bus().Publish(ctx, eventbus.TopicFormSubmitted, eventbus.FormSubmitted{
		WorkflowRunID: run.ID,
		SubmissionID:  "sub-42",
	}))

	require.Eventually(t, func() bool {
		r, err := env.exec.GetRun(ctx, run.ID)
		return err == nil && r.Status == workflow.RunStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	run, err := env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub-42", contextOf(t, run)["submissionId"])
}

func TestEngine_HumanTaskCompletedByCorrelation(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "approval", `{
	  "startAt": "approve",
	  "steps": [
	    {"id": "approve", "type": "HumanTaskStep", "config": {"assigneeType": "User", "assigneeId": "user1"}, "transitions": [{"to": "done"}]},
	    {"id": "done", "type": "EndStep"}
	  ]
	}`)
	ctx := context.Background()
	require.NoError(t, env.engine.Start(ctx))
	defer env.engine.Stop()

	run, err := env.exec.StartRun(ctx, StartRunRequest{DefinitionCode: "approval", CorrelationID: "req-7"})
	require.NoError(t, err)
	require.Equal(t, workflow.RunStatusPaused, run.Status)
	assert.Contains(t, contextOf(t, run), "humanTask")

	require.NoError(t, env.engine.Bus().Publish(ctx, eventbus.TopicHumanTaskCompleted, eventbus.HumanTaskCompleted{
		TaskID:        "t-1",
		CorrelationID: "req-7",
		Payload:       map[string]any{"approved": true},
	}))

	require.Eventually(t, func() bool {
		r, err := env.exec.GetRun(ctx, run.ID)
		return err == nil && r.Status == workflow.RunStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	run, err = env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, true, contextOf(t, run)["approved"])
	assert.Equal(t, eventbus.TopicHumanTaskCompleted, run.ResumeSignal)
}

func TestTimerSweeper_TimeoutResumesRun(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "timeout", `{
	  "startAt": "wait",
	  "steps": [
	    {"id": "wait", "type": "WaitForEvent", "config": {"eventName": "Paid", "timeout": "10ms"}, "transitions": [{"to": "end"}]},
	    {"id": "end", "type": "EndStep"}
	  ]
	}`)
	ctx := context.Background()

	run := env.start(t, "timeout", nil)
	require.Equal(t, workflow.RunStatusPaused, run.Status)
	time.Sleep(50 * time.Millisecond)

	fired, err := env.engine.Sweeper().SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	run, err = env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusCompleted, run.Status)
	assert.Equal(t, "Paid"+step.TimeoutSignalSuffix, run.ResumeSignal)
	assert.Equal(t, true, contextOf(t, run)["timedOut"])

	// 已领取的定时器不会再次触发
	fired, err = env.engine.Sweeper().SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}

func TestTimerSweeper_StaleTimerIgnored(t *testing.T) {
	env := setupEngine(t)
	env.publish(t, "timeout", `{
	  "startAt": "wait",
	  "steps": [
	    {"id": "wait", "type": "WaitForEvent", "config": {"eventName": "Paid", "timeout": "10ms"}, "transitions": [{"to": "end"}]},
	    {"id": "end", "type": "EndStep"}
	  ]
	}`)
	ctx := context.Background()

	run := env.start(t, "timeout", nil)
	require.NoError(t, env.exec.Signal(ctx, run.ID, "Paid", map[string]any{"amount": 10}))
	time.Sleep(50 * time.Millisecond)

	_, err := env.engine.Sweeper().SweepOnce(ctx)
	require.NoError(t, err)

	run, err = env.exec.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paid", run.ResumeSignal)
	assert.NotContains(t, contextOf(t, run), "timedOut")
	signals, err := env.exec.ListSignals(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

type capturePlugin struct {
	mu     sync.Mutex
	events []plugin.PluginData
}

func (p *capturePlugin) Name() string                  { return "capture" }
func (p *capturePlugin) Init(map[string]string) error { return nil }
func (p *capturePlugin) Execute(data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, data.(plugin.PluginData))
	return nil
}

func TestNotifier_HubAndPlugins(t *testing.T) {
	capture := &capturePlugin{}
	plugins := plugin.NewPluginManager()
	require.NoError(t, plugins.Register(capture))
	require.NoError(t, plugins.Bind(plugin.PluginBinding{PluginName: "capture", Event: plugin.EventWorkflowFailed}))
	hub := realtime.NewHub(64)

	env := setupEngine(t, func(o *Options) {
		o.Plugins = plugins
		o.Hub = hub
	})
	env.publish(t, "fail", `{"startAt": "x", "steps": [{"id": "x", "type": "FailStep", "config": {"message": "nope"}}]}`)

	sub := hub.Subscribe("")
	defer sub.Close()

	run := env.start(t, "fail", nil)

	var got []realtime.EventType
	for len(sub.Events()) > 0 {
		got = append(got, (<-sub.Events()).Type)
	}
	assert.Equal(t, []realtime.EventType{
		realtime.EventRunStarted,
		realtime.EventStepStarted,
		realtime.EventStepFailed,
		realtime.EventRunFailed,
		realtime.EventCompensationFinished,
	}, got)

	require.Len(t, capture.events, 1)
	assert.Equal(t, run.ID, capture.events[0].RunID)
	assert.Equal(t, "fail", capture.events[0].DefinitionCode)
	assert.Equal(t, "nope", capture.events[0].Error)
}

func TestRunLocker_ReleasesEntries(t *testing.T) {
	l := newRunLocker()
	unlock := l.Lock("r1")
	assert.Equal(t, 1, l.size())

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Lock("r1")()
	}()
	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("同一运行的锁应互斥")
	default:
	}
	unlock()
	<-done
	assert.Equal(t, 0, l.size())
}
