package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// Signaler 向工作流投递信号的能力（由执行器实现）
type Signaler interface {
	Signal(ctx context.Context, runID, name string, payload map[string]any) error
	SignalByCorrelation(ctx context.Context, correlationID, name string, payload map[string]any) error
}

// RegisterWorkflowSubscribers 注册把外部事件转换为工作流信号的订阅者
func RegisterWorkflowSubscribers(bus *Bus, signaler Signaler) error {
	if err := bus.Subscribe("workflow_form_submitted", TopicFormSubmitted, formSubmittedHandler(signaler)); err != nil {
		return err
	}
	return bus.Subscribe("workflow_human_task_completed", TopicHumanTaskCompleted, humanTaskCompletedHandler(signaler))
}

func formSubmittedHandler(signaler Signaler) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var evt FormSubmitted
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("解析FormSubmitted事件失败: %w", err)
		}

		data := make(map[string]any, len(evt.Data)+2)
		for k, v := range evt.Data {
			data[k] = v
		}
		data["submissionId"] = evt.SubmissionID
		if evt.FormID != "" {
			data["formId"] = evt.FormID
		}

		return route(ctx, signaler, evt.WorkflowRunID, evt.CorrelationID, TopicFormSubmitted, data)
	}
}

func humanTaskCompletedHandler(signaler Signaler) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var evt HumanTaskCompleted
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("解析HumanTaskCompleted事件失败: %w", err)
		}
		data := evt.Payload
		if data == nil {
			data = make(map[string]any)
		}
		return route(ctx, signaler, evt.WorkflowRunID, evt.CorrelationID, TopicHumanTaskCompleted, data)
	}
}

func route(ctx context.Context, signaler Signaler, runID, correlationID, name string, data map[string]any) error {
	switch {
	case runID != "":
		return signaler.Signal(ctx, runID, name, data)
	case correlationID != "":
		return signaler.SignalByCorrelation(ctx, correlationID, name, data)
	default:
		log.Printf("⚠️ [EventBus] 事件 %s 既没有workflowRunId也没有correlationId，已忽略", name)
		return nil
	}
}
