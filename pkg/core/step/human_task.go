package step

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/eventbus"
)

// TypeHumanTask 人工任务
const TypeHumanTask = "HumanTaskStep"

// HumanTaskHandler 发布人工任务请求后暂停，任务完成事件恢复运行
type HumanTaskHandler struct {
	publisher types.EventPublisher
}

// NewHumanTaskHandler 创建处理器
func NewHumanTaskHandler(publisher types.EventPublisher) *HumanTaskHandler {
	return &HumanTaskHandler{publisher: publisher}
}

// Execute 实现Handler接口
func (h *HumanTaskHandler) Execute(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, stepDsl *dsl.StepDsl) *Result {
	assigneeType := stepDsl.ConfigString("assigneeType")
	assigneeID := stepDsl.ConfigString("assigneeId")
	if assigneeType == "" || assigneeID == "" {
		return Failure("HumanTaskStep 需要 assigneeType 和 assigneeId 配置")
	}
	if h.publisher == nil {
		return Failure("HumanTaskStep 未配置事件发布器")
	}

	req := eventbus.HumanTaskRequested{
		TaskID:        uuid.NewString(),
		WorkflowRunID: run.ID,
		StepID:        stepDsl.ID,
		AssigneeType:  assigneeType,
		AssigneeID:    assigneeID,
		Title:         stepDsl.ConfigString("title"),
		CorrelationID: run.CorrelationID,
	}
	if err := h.publisher.Publish(ctx, eventbus.TopicHumanTaskRequested, req); err != nil {
		return Failure(fmt.Sprintf("发布人工任务失败: %v", err))
	}

	log.Printf("⏸️ [HumanTask] 已创建人工任务: TaskID=%s, RunID=%s, Assignee=%s/%s",
		req.TaskID, run.ID, assigneeType, assigneeID)
	return PausedWith(map[string]any{
		"humanTask": map[string]any{
			"taskId":       req.TaskID,
			"assigneeType": assigneeType,
			"assigneeId":   assigneeID,
		},
	})
}
