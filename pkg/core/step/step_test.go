package step

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

type fakeTimers struct {
	timers []*workflow.Timer
}

func (f *fakeTimers) ScheduleTimer(_ context.Context, timer *workflow.Timer) error {
	f.timers = append(f.timers, timer)
	return nil
}

type fakePublisher struct {
	topics   []string
	payloads []any
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeInvoker struct {
	calls    int
	lastReq  *types.ApiRequest
	response *types.ApiResponse
	err      error
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, req *types.ApiRequest) (*types.ApiResponse, error) {
	f.calls++
	f.lastReq = req
	return f.response, f.err
}

type fakeMapper struct {
	results map[string]*types.MappingResult
	inputs  map[string]map[string]any
}

func (f *fakeMapper) Apply(_ context.Context, mappingID string, input map[string]any) (*types.MappingResult, error) {
	if f.inputs == nil {
		f.inputs = make(map[string]map[string]any)
	}
	f.inputs[mappingID] = input
	r, ok := f.results[mappingID]
	if !ok {
		return nil, errors.New("映射集不存在")
	}
	return r, nil
}

type memoryIdempotency struct {
	mu      sync.Mutex
	records map[string]*workflow.IdempotencyRecord
}

func (m *memoryIdempotency) Lookup(_ context.Context, route, key string) (*workflow.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[route+"|"+key], nil
}

func (m *memoryIdempotency) Save(_ context.Context, record *workflow.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]*workflow.IdempotencyRecord)
	}
	m.records[record.Route+"|"+record.Key] = record
	return nil
}

func newRunAndStep(stepID, stepType, contextJSON string) (*workflow.Run, *workflow.RunStep) {
	run := workflow.NewRun("wf", 1, contextJSON, "corr-1")
	return run, workflow.NewRunStep(run.ID, stepID, stepType, 1)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Descriptor{Type: "B", Handler: EndHandler{}}))
	require.NoError(t, r.Register(&Descriptor{Type: "A", Handler: EndHandler{}}))

	assert.Error(t, r.Register(&Descriptor{Type: "A", Handler: EndHandler{}}))
	assert.Error(t, r.Register(&Descriptor{Type: "", Handler: EndHandler{}}))
	assert.Error(t, r.Register(&Descriptor{Type: "C"}))

	desc, ok := r.GetStepType("A")
	require.True(t, ok)
	assert.Equal(t, "A", desc.Type)

	all := r.GetAllStepTypes()
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Type)
	assert.Equal(t, "B", all[1].Type)

	_, err := r.Resolve("missing")
	assert.True(t, errors.Is(err, ErrUnknownStepType))
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry(Deps{})
	require.NoError(t, err)
	for _, typ := range []string{TypeWaitForEvent, TypeHumanTask, TypeServiceTask, TypeEnd, TypePass} {
		assert.True(t, r.HasStepType(typ), typ)
	}
}

func TestWaitForEventHandler_PausesAndSchedulesTimeout(t *testing.T) {
	timers := &fakeTimers{}
	h := NewWaitForEventHandler(timers)
	run, runStep := newRunAndStep("wait", TypeWaitForEvent, "{}")

	result := h.Execute(context.Background(), run, runStep, &dsl.StepDsl{
		ID:     "wait",
		Type:   TypeWaitForEvent,
		Config: map[string]any{"eventName": "PaymentReceived", "timeout": "00:30:00"},
	})

	assert.True(t, result.IsSuccess)
	assert.True(t, result.IsPaused)
	require.Len(t, timers.timers, 1)
	assert.Equal(t, "PaymentReceived.Timeout", timers.timers[0].SignalName)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), timers.timers[0].DueAt, time.Minute)
}

func TestWaitForEventHandler_MissingEventName(t *testing.T) {
	h := NewWaitForEventHandler(nil)
	run, runStep := newRunAndStep("wait", TypeWaitForEvent, "{}")
	result := h.Execute(context.Background(), run, runStep, &dsl.StepDsl{ID: "wait"})
	assert.False(t, result.IsSuccess)
	assert.NotEmpty(t, result.Error)
}

func TestParseTimeout(t *testing.T) {
	d, err := ParseTimeout("45s")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	d, err = ParseTimeout("01:02:03")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, d)

	_, err = ParseTimeout("soon")
	assert.Error(t, err)
	_, err = ParseTimeout("00:00:00")
	assert.Error(t, err)
}

func TestHumanTaskHandler_PublishesRequest(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHumanTaskHandler(pub)
	run, runStep := newRunAndStep("approve", TypeHumanTask, "{}")

	result := h.Execute(context.Background(), run, runStep, &dsl.StepDsl{
		ID:     "approve",
		Config: map[string]any{"assigneeType": "User", "assigneeId": "user1"},
	})

	assert.True(t, result.IsPaused)
	require.Len(t, pub.topics, 1)
	assert.Equal(t, eventbus.TopicHumanTaskRequested, pub.topics[0])
	req := pub.payloads[0].(eventbus.HumanTaskRequested)
	assert.Equal(t, run.ID, req.WorkflowRunID)
	assert.Equal(t, "user1", req.AssigneeID)
	assert.Equal(t, "corr-1", req.CorrelationID)
	assert.NotEmpty(t, req.TaskID)
	assert.Equal(t, req.TaskID, result.OutputContext["humanTask"].(map[string]any)["taskId"])
}

func TestHumanTaskHandler_RequiresAssignee(t *testing.T) {
	h := NewHumanTaskHandler(&fakePublisher{})
	run, runStep := newRunAndStep("approve", TypeHumanTask, "{}")
	result := h.Execute(context.Background(), run, runStep, &dsl.StepDsl{ID: "approve", Config: map[string]any{"assigneeType": "User"}})
	assert.False(t, result.IsSuccess)
}

func TestServiceTaskHandler_NoMappingStoresUnderApis(t *testing.T) {
	invoker := &fakeInvoker{response: &types.ApiResponse{StatusCode: 200, Body: map[string]any{"id": "p-1"}}}
	h := NewServiceTaskHandler(invoker, nil, &memoryIdempotency{})
	run, runStep := newRunAndStep("call", TypeServiceTask, `{"apis":{"other":{"response":1}}}`)

	result := h.Execute(context.Background(), run, runStep, &dsl.StepDsl{
		ID:          "call",
		Config:      map[string]any{"serviceMethodId": "create-policy"},
		Transitions: []dsl.Transition{{To: "next"}},
	})

	require.True(t, result.IsSuccess, result.Error)
	assert.Equal(t, "next", result.NextStepID)
	apis := result.OutputContext["apis"].(map[string]any)
	assert.Contains(t, apis, "other")
	call := apis["call"].(map[string]any)
	assert.Equal(t, map[string]any{"id": "p-1"}, call["response"])
}

func TestServiceTaskHandler_MappingAndIdempotency(t *testing.T) {
	invoker := &fakeInvoker{response: &types.ApiResponse{StatusCode: 201, Body: map[string]any{"balance": 10}}}
	mapper := &fakeMapper{results: map[string]*types.MappingResult{
		"req":  {Body: map[string]any{"customer": "c1"}, Headers: map[string]string{"X-Trace": "1"}},
		"resp": {VarsPatch: map[string]any{"fundBalance": 10}},
	}}
	store := &memoryIdempotency{}
	h := NewServiceTaskHandler(invoker, mapper, store)
	run, runStep := newRunAndStep("call", TypeServiceTask, `{"customerId":"c1"}`)
	stepDsl := &dsl.StepDsl{
		ID: "call",
		Config: map[string]any{
			"serviceMethodId":   "balance",
			"requestMappingId":  "req",
			"responseMappingId": "resp",
		},
	}

	result := h.Execute(context.Background(), run, runStep, stepDsl)
	require.True(t, result.IsSuccess, result.Error)
	assert.Equal(t, map[string]any{"fundBalance": 10}, result.OutputContext)
	assert.Equal(t, "1", invoker.lastReq.Headers["X-Trace"])
	assert.Equal(t, map[string]any{"balance": 10}, mapper.inputs["resp"]["response"])
	assert.Equal(t, "c1", mapper.inputs["resp"]["customerId"])

	// 相同ExecutionKey再次执行不会重复调用API
	again := h.Execute(context.Background(), run, runStep, stepDsl)
	require.True(t, again.IsSuccess)
	assert.Equal(t, 1, invoker.calls)
	assert.Equal(t, float64(10), again.OutputContext["fundBalance"])
}

func TestServiceTaskHandler_Failures(t *testing.T) {
	run, runStep := newRunAndStep("call", TypeServiceTask, "{}")
	stepDsl := &dsl.StepDsl{ID: "call", Config: map[string]any{"serviceMethodId": "m"}}

	h := NewServiceTaskHandler(&fakeInvoker{response: &types.ApiResponse{StatusCode: 500}}, nil, nil)
	assert.False(t, h.Execute(context.Background(), run, runStep, stepDsl).IsSuccess)

	h = NewServiceTaskHandler(&fakeInvoker{err: errors.New("timeout")}, nil, nil)
	assert.False(t, h.Execute(context.Background(), run, runStep, stepDsl).IsSuccess)

	h = NewServiceTaskHandler(&fakeInvoker{}, nil, nil)
	assert.False(t, h.Execute(context.Background(), run, runStep, &dsl.StepDsl{ID: "call"}).IsSuccess)
}

func TestPassHandler(t *testing.T) {
	run, runStep := newRunAndStep("p", TypePass, "{}")
	result := PassHandler{}.Execute(context.Background(), run, runStep, &dsl.StepDsl{
		ID:          "p",
		Config:      map[string]any{"set": map[string]any{"k": "v"}},
		Transitions: []dsl.Transition{{To: "q"}},
	})
	assert.True(t, result.IsSuccess)
	assert.Equal(t, "q", result.NextStepID)
	assert.Equal(t, "v", result.OutputContext["k"])
}
