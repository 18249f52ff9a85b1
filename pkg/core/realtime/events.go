// Package realtime 提供运行实例状态变化的实时事件推送
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 运行事件
	EventRunStarted   EventType = "run.started"   // 运行创建
	EventRunPaused    EventType = "run.paused"    // 运行暂停等待信号
	EventRunResumed   EventType = "run.resumed"   // 运行被信号恢复
	EventRunCompleted EventType = "run.completed" // 运行完成
	EventRunFailed    EventType = "run.failed"    // 运行失败
	EventRunCancelled EventType = "run.cancelled" // 运行取消

	// 步骤事件
	EventStepStarted   EventType = "step.started"   // 步骤开始
	EventStepCompleted EventType = "step.completed" // 步骤完成
	EventStepFailed    EventType = "step.failed"    // 步骤失败

	// 信号与补偿
	EventSignalReceived       EventType = "signal.received"       // 收到信号
	EventCompensationFinished EventType = "compensation.finished" // 补偿结束
)

// RunEvent 运行事件
type RunEvent struct {
	ID            string            `json:"id"`            // 事件ID（UUID）
	Type          EventType         `json:"type"`          // 事件类型
	RunID         string            `json:"runId"`         // 关联运行ID
	StepID        string            `json:"stepId"`        // 关联步骤ID（可选）
	Status        string            `json:"status"`        // 事件发生后的运行状态
	Timestamp     time.Time         `json:"timestamp"`     // 事件时间
	Payload       any               `json:"payload"`       // 事件负载
	Metadata      map[string]string `json:"metadata"`      // 元数据
	CorrelationID string            `json:"correlationId"` // 业务相关ID
}

// NewRunEvent 创建运行事件
func NewRunEvent(eventType EventType, runID, stepID, status string, payload any) *RunEvent {
	return &RunEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		StepID:    stepID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata 添加元数据
func (e *RunEvent) WithMetadata(key, value string) *RunEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// WithCorrelationID 设置相关ID
func (e *RunEvent) WithCorrelationID(correlationID string) *RunEvent {
	e.CorrelationID = correlationID
	return e
}

// IsTerminal 事件是否代表运行结束
func (e *RunEvent) IsTerminal() bool {
	switch e.Type {
	case EventRunCompleted, EventRunFailed, EventRunCancelled:
		return true
	default:
		return false
	}
}

// StepFailedPayload 步骤失败事件负载
type StepFailedPayload struct {
	StepType string `json:"stepType"`
	Attempt  int    `json:"attempt"`
	Error    string `json:"error"`
}

// SignalPayload 信号事件负载
type SignalPayload struct {
	Name    string `json:"name"`
	Handled bool   `json:"handled"` // 是否使运行恢复
}

// CompensationPayload 补偿结束事件负载
type CompensationPayload struct {
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	AlreadyDone int `json:"alreadyDone"`
}
