package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/eventbus"
)

// ActionExecutor 补偿动作执行器
type ActionExecutor interface {
	Execute(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction) error
}

// ActionFunc 函数适配器
type ActionFunc func(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction) error

// Execute 实现ActionExecutor接口
func (f ActionFunc) Execute(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction) error {
	return f(ctx, run, runStep, action)
}

// 内置补偿动作类型
const (
	ActionAPICall       = "apicall"
	ActionWalletReverse = "walletreverse"
	ActionPaymentRefund = "paymentrefund"
	ActionCustomEvent   = "customevent"
)

// APICallAction 调用外部API执行补偿，config.methodId 必填，config.params 作为请求体
func APICallAction(invoker types.ApiInvoker) ActionFunc {
	return func(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction) error {
		methodID := action.ConfigString("methodId")
		if methodID == "" {
			return fmt.Errorf("apicall 补偿缺少 methodId 配置")
		}
		if invoker == nil {
			return fmt.Errorf("未配置API调用器")
		}
		body := map[string]any{}
		if params, ok := action.Config["params"].(map[string]any); ok {
			body = params
		}
		resp, err := invoker.Invoke(ctx, methodID, &types.ApiRequest{
			Headers: map[string]string{"X-Workflow-Run-Id": run.ID, "X-Workflow-Step-Id": runStep.StepID},
			Body:    body,
		})
		if err != nil {
			return fmt.Errorf("补偿API调用失败: %w", err)
		}
		if !resp.IsSuccess() {
			return fmt.Errorf("补偿API调用失败: 状态码 %d", resp.StatusCode)
		}
		return nil
	}
}

// SimulatedAction 仅记录日志的补偿动作（钱包冲正、支付退款由外部模块实现）
func SimulatedAction(label string) ActionFunc {
	return func(_ context.Context, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction) error {
		cfg, _ := json.Marshal(action.Config)
		log.Printf("🔄 [SAGA] 模拟%s: RunID=%s, StepID=%s, Config=%s", label, run.ID, runStep.StepID, string(cfg))
		return nil
	}
}

// CustomEventAction 在事件总线上发布补偿事件，config.eventName 为主题
func CustomEventAction(publisher types.EventPublisher) ActionFunc {
	return func(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, action *dsl.CompensationAction) error {
		eventName := action.ConfigString("eventName")
		if eventName == "" {
			return fmt.Errorf("customevent 补偿缺少 eventName 配置")
		}
		if publisher == nil {
			return fmt.Errorf("未配置事件发布器")
		}
		return publisher.Publish(ctx, eventName, eventbus.CompensationEvent{
			WorkflowRunID: run.ID,
			StepID:        runStep.StepID,
			Action:        "Compensation",
			Config:        action.Config,
		})
	}
}
