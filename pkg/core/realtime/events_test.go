package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunEvent(t *testing.T) {
	event := NewRunEvent(EventStepFailed, "run-1", "charge", "Failed", &StepFailedPayload{StepType: "ServiceTaskStep", Attempt: 1, Error: "boom"})
	event.WithMetadata("env", "test").WithCorrelationID("corr-123")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "charge", event.StepID)
	assert.Equal(t, "test", event.Metadata["env"])
	assert.Equal(t, "corr-123", event.CorrelationID)
	assert.False(t, event.IsTerminal())
	assert.True(t, NewRunEvent(EventRunCancelled, "run-1", "", "Cancelled", nil).IsTerminal())

	// 线上格式为camelCase
	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"runId":"run-1"`)
	assert.Contains(t, string(data), `"correlationId":"corr-123"`)
}

func TestHub_FiltersByRun(t *testing.T) {
	hub := NewHub(8)
	all := hub.Subscribe("")
	one := hub.Subscribe("run-1")
	defer all.Close()
	defer one.Close()

	hub.Publish(NewRunEvent(EventRunStarted, "run-1", "", "Running", nil))
	hub.Publish(NewRunEvent(EventRunStarted, "run-2", "", "Running", nil))

	assert.Equal(t, "run-1", (<-one.Events()).RunID)
	select {
	case e := <-one.Events():
		t.Fatalf("不应收到其他运行的事件: %s", e.RunID)
	case <-time.After(20 * time.Millisecond):
	}

	assert.Equal(t, "run-1", (<-all.Events()).RunID)
	assert.Equal(t, "run-2", (<-all.Events()).RunID)
}

func TestHub_DropsWhenFullAndClosesOnUnsubscribe(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe("run-1")

	hub.Publish(NewRunEvent(EventStepStarted, "run-1", "a", "Running", nil))
	hub.Publish(NewRunEvent(EventStepStarted, "run-1", "b", "Running", nil))
	assert.Equal(t, int64(1), sub.Dropped())

	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount())

	// 剩余事件仍可读出，之后通道关闭
	_, ok := <-sub.Events()
	assert.True(t, ok)
	_, ok = <-sub.Events()
	assert.False(t, ok)

	// 关闭后再次关闭与推送都是安全的
	sub.Close()
	hub.Publish(NewRunEvent(EventRunCompleted, "run-1", "", "Completed", nil))
}
