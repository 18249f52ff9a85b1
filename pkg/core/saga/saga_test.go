package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/eventbus"
)

type memoryLedger struct {
	mu      sync.Mutex
	entries map[string]*LedgerEntry
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: make(map[string]*LedgerEntry)}
}

func (m *memoryLedger) GetLedgerEntry(_ context.Context, key string) (*LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memoryLedger) SaveLedgerEntry(_ context.Context, entry *LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.ExecutionKey] = &cp
	return nil
}

func (m *memoryLedger) ListLedgerEntries(_ context.Context, runID string) ([]*LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LedgerEntry
	for _, e := range m.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	topics   []string
	payloads []any
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

type stubInvoker struct {
	methods []string
	status  int
}

func (s *stubInvoker) Invoke(_ context.Context, methodID string, _ *types.ApiRequest) (*types.ApiResponse, error) {
	s.methods = append(s.methods, methodID)
	return &types.ApiResponse{StatusCode: s.status}, nil
}

func completedStep(runID, stepID string, endedAt time.Time) *workflow.RunStep {
	s := workflow.NewRunStep(runID, stepID, "ServiceTaskStep", 1)
	s.Status = workflow.StepStatusCompleted
	s.EndedAt = &endedAt
	return s
}

func sagaDsl() *dsl.WorkflowDsl {
	return &dsl.WorkflowDsl{
		StartAt: "a",
		Steps: []dsl.StepDsl{
			{ID: "a", Type: "ServiceTaskStep", Compensation: []dsl.CompensationAction{
				{Type: "ApiCall", Config: map[string]any{"methodId": "undo-a"}},
			}},
			{ID: "b", Type: "ServiceTaskStep", Compensation: []dsl.CompensationAction{
				{Type: "CustomEvent", Config: map[string]any{"eventName": "b.undo"}},
				{Type: "PaymentRefund", Config: map[string]any{"amount": 10}},
			}},
			{ID: "c", Type: "ServiceTaskStep", Compensation: []dsl.CompensationAction{
				{Type: "ApiCall", Config: map[string]any{"methodId": "undo-c"}},
			}},
		},
	}
}

func TestCompletedStepsNewestFirst(t *testing.T) {
	now := time.Now()
	steps := []*workflow.RunStep{
		completedStep("r", "a", now),
		completedStep("r", "b", now.Add(2*time.Second)),
		completedStep("r", "c", now.Add(time.Second)),
	}
	failed := workflow.NewRunStep("r", "d", "X", 1)
	failed.Status = workflow.StepStatusFailed
	steps = append(steps, failed)

	ordered := CompletedStepsNewestFirst(steps)
	require.Len(t, ordered, 3)
	assert.Equal(t, "b", ordered[0].StepID)
	assert.Equal(t, "c", ordered[1].StepID)
	assert.Equal(t, "a", ordered[2].StepID)
}

func TestCompensate_ReverseOrderAndOnlyCompleted(t *testing.T) {
	invoker := &stubInvoker{status: 200}
	pub := &recordingPublisher{}
	ledger := newMemoryLedger()
	c := NewDefaultCompensator(ledger, invoker, pub)

	run := workflow.NewRun("wf", 1, "{}", "")
	now := time.Now()
	// 步骤 c 失败，不应被补偿
	failed := workflow.NewRunStep(run.ID, "c", "ServiceTaskStep", 1)
	failed.Fail("boom")
	steps := []*workflow.RunStep{
		completedStep(run.ID, "a", now),
		completedStep(run.ID, "b", now.Add(time.Second)),
		failed,
	}

	report := c.Compensate(context.Background(), run, steps, sagaDsl())
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	assert.Equal(t, []string{"undo-a"}, invoker.methods)
	require.Len(t, pub.topics, 1)
	assert.Equal(t, "b.undo", pub.topics[0])
	evt := pub.payloads[0].(eventbus.CompensationEvent)
	assert.Equal(t, run.ID, evt.WorkflowRunID)
	assert.Equal(t, "b", evt.StepID)
	assert.Equal(t, "Compensation", evt.Action)

	entries, err := ledger.ListLedgerEntries(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCompensate_SecondPassSkipsSucceeded(t *testing.T) {
	invoker := &stubInvoker{status: 200}
	ledger := newMemoryLedger()
	c := NewDefaultCompensator(ledger, invoker, &recordingPublisher{})
	run := workflow.NewRun("wf", 1, "{}", "")
	steps := []*workflow.RunStep{completedStep(run.ID, "a", time.Now())}

	first := c.Compensate(context.Background(), run, steps, sagaDsl())
	assert.Equal(t, 1, first.Succeeded)

	second := c.Compensate(context.Background(), run, steps, sagaDsl())
	assert.Equal(t, 0, second.Succeeded)
	assert.Equal(t, 1, second.AlreadyDone)
	assert.Len(t, invoker.methods, 1)
}

func TestCompensate_FailedActionRetriedNextPass(t *testing.T) {
	ledger := newMemoryLedger()
	c := NewCompensator(ledger)
	calls := 0
	c.RegisterAction("apicall", ActionFunc(func(context.Context, *workflow.Run, *workflow.RunStep, *dsl.CompensationAction) error {
		calls++
		if calls == 1 {
			return errors.New("下游不可用")
		}
		return nil
	}))
	run := workflow.NewRun("wf", 1, "{}", "")
	step := completedStep(run.ID, "a", time.Now())

	first := c.Compensate(context.Background(), run, []*workflow.RunStep{step}, sagaDsl())
	assert.Equal(t, 1, first.Failed)

	key := BuildCompensationKey(step.ExecutionKey, 0)
	entry, _ := ledger.GetLedgerEntry(context.Background(), key)
	require.NotNil(t, entry)
	assert.Equal(t, CompensationStateFailed, entry.Status)
	assert.Equal(t, "下游不可用", entry.Error)

	second := c.Compensate(context.Background(), run, []*workflow.RunStep{step}, sagaDsl())
	assert.Equal(t, 1, second.Succeeded)
	entry, _ = ledger.GetLedgerEntry(context.Background(), key)
	assert.Equal(t, CompensationStateSucceeded, entry.Status)
	assert.Equal(t, 2, entry.Attempts)
}

func TestCompensate_UnknownActionSkipped(t *testing.T) {
	c := NewCompensator(nil)
	run := workflow.NewRun("wf", 1, "{}", "")
	wdsl := &dsl.WorkflowDsl{StartAt: "a", Steps: []dsl.StepDsl{
		{ID: "a", Type: "PassStep", Compensation: []dsl.CompensationAction{{Type: "Teleport"}}},
	}}
	report := c.Compensate(context.Background(), run, []*workflow.RunStep{completedStep(run.ID, "a", time.Now())}, wdsl)
	assert.Equal(t, 1, report.Skipped)
}

func TestCompensate_PanicIsRecorded(t *testing.T) {
	c := NewCompensator(nil)
	c.RegisterAction("apicall", ActionFunc(func(context.Context, *workflow.Run, *workflow.RunStep, *dsl.CompensationAction) error {
		panic("kaboom")
	}))
	run := workflow.NewRun("wf", 1, "{}", "")
	report := c.Compensate(context.Background(), run, []*workflow.RunStep{completedStep(run.ID, "a", time.Now())}, sagaDsl())
	assert.Equal(t, 1, report.Failed)
}

func TestLedgerEntryTransitions(t *testing.T) {
	e := &LedgerEntry{ExecutionKey: "k", Status: CompensationStatePending}
	require.NoError(t, e.TransitionTo(CompensationStateSucceeded))
	assert.Error(t, e.TransitionTo(CompensationStatePending))
	assert.Equal(t, "r:s:1:comp:2", BuildCompensationKey("r:s:1", 2))
}
