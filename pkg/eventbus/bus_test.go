package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signalCall struct {
	runID         string
	correlationID string
	name          string
	payload       map[string]any
}

type fakeSignaler struct {
	calls chan signalCall
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{calls: make(chan signalCall, 10)}
}

func (f *fakeSignaler) Signal(_ context.Context, runID, name string, payload map[string]any) error {
	f.calls <- signalCall{runID: runID, name: name, payload: payload}
	return nil
}

func (f *fakeSignaler) SignalByCorrelation(_ context.Context, correlationID, name string, payload map[string]any) error {
	f.calls <- signalCall{correlationID: correlationID, name: name, payload: payload}
	return nil
}

func startBus(t *testing.T, signaler Signaler) *Bus {
	bus, err := NewBus(Config{})
	require.NoError(t, err)
	require.NoError(t, RegisterWorkflowSubscribers(bus, signaler))
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func waitCall(t *testing.T, f *fakeSignaler) signalCall {
	select {
	case call := <-f.calls:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("等待信号超时")
		return signalCall{}
	}
}

func TestBus_FormSubmittedSignalsRun(t *testing.T) {
	signaler := newFakeSignaler()
	bus := startBus(t, signaler)

	err := bus.Publish(context.Background(), TopicFormSubmitted, FormSubmitted{
		WorkflowRunID: "run-1",
		SubmissionID:  "sub-9",
		FormID:        "form-1",
	})
	require.NoError(t, err)

	call := waitCall(t, signaler)
	assert.Equal(t, "run-1", call.runID)
	assert.Equal(t, TopicFormSubmitted, call.name)
	assert.Equal(t, "sub-9", call.payload["submissionId"])
	assert.Equal(t, "form-1", call.payload["formId"])
}

func TestBus_HumanTaskCompletedByCorrelation(t *testing.T) {
	signaler := newFakeSignaler()
	bus := startBus(t, signaler)

	err := bus.Publish(context.Background(), TopicHumanTaskCompleted, HumanTaskCompleted{
		TaskID:        "task-1",
		CorrelationID: "order-42",
		Payload:       map[string]any{"approved": true},
	})
	require.NoError(t, err)

	call := waitCall(t, signaler)
	assert.Equal(t, "order-42", call.correlationID)
	assert.Equal(t, TopicHumanTaskCompleted, call.name)
	assert.Equal(t, true, call.payload["approved"])
}

func TestBus_SubscribeAfterStartFails(t *testing.T) {
	bus := startBus(t, newFakeSignaler())
	err := bus.Subscribe("late", "topic", func(context.Context, []byte) error { return nil })
	assert.Error(t, err)
}

func TestBus_RawPayload(t *testing.T) {
	bus, err := NewBus(Config{})
	require.NoError(t, err)

	received := make(chan []byte, 1)
	require.NoError(t, bus.Subscribe("raw", "raw.topic", func(_ context.Context, payload []byte) error {
		received <- payload
		return nil
	}))
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), "raw.topic", []byte(`{"x":1}`)))
	select {
	case payload := <-received:
		assert.JSONEq(t, `{"x":1}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("等待消息超时")
	}
}
