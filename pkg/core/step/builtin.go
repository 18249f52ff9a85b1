package step

import (
	"context"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

const (
	TypeEnd  = "EndStep"
	TypePass = "PassStep"
)

// EndHandler 结束步骤
type EndHandler struct{}

// Execute 实现Handler接口
func (EndHandler) Execute(context.Context, *workflow.Run, *workflow.RunStep, *dsl.StepDsl) *Result {
	return Success("", nil)
}

// PassHandler 直通步骤，把 config.set 合并进上下文后沿第一个流转继续
type PassHandler struct{}

// Execute 实现Handler接口
func (PassHandler) Execute(_ context.Context, _ *workflow.Run, _ *workflow.RunStep, stepDsl *dsl.StepDsl) *Result {
	next, _ := stepDsl.FirstTransition()
	return Success(next, stepDsl.ConfigMap("set"))
}

// Deps 内置处理器依赖的端口，均可为nil
type Deps struct {
	Invoker     types.ApiInvoker
	Mapper      types.Mapper
	Idempotency types.IdempotencyStore
	Publisher   types.EventPublisher
	Timers      types.TimerScheduler
}

// NewDefaultRegistry 注册全部内置步骤类型
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	r := NewRegistry()
	descriptors := []*Descriptor{
		{
			Type:        TypeWaitForEvent,
			DisplayName: "等待事件",
			Description: "暂停运行，直到收到外部信号或超时",
			ConfigSchema: objectSchema([]string{"eventName"}, map[string]any{
				"eventName": map[string]any{"type": "string"},
				"timeout":   map[string]any{"type": "string"},
			}),
			PauseSignals: []string{"<eventName>", "<eventName>" + TimeoutSignalSuffix},
			Handler:      NewWaitForEventHandler(deps.Timers),
		},
		{
			Type:        TypeHumanTask,
			DisplayName: "人工任务",
			Description: "创建人工任务并等待完成",
			ConfigSchema: objectSchema([]string{"assigneeType", "assigneeId"}, map[string]any{
				"assigneeType": map[string]any{"type": "string", "enum": []string{"User", "Role", "Group"}},
				"assigneeId":   map[string]any{"type": "string"},
				"title":        map[string]any{"type": "string"},
			}),
			PauseSignals: []string{"HumanTaskCompleted"},
			Handler:      NewHumanTaskHandler(deps.Publisher),
		},
		{
			Type:        TypeServiceTask,
			DisplayName: "服务调用",
			Description: "调用外部API，支持请求/响应映射与幂等",
			ConfigSchema: objectSchema([]string{"serviceMethodId"}, map[string]any{
				"serviceMethodId":   map[string]any{"type": "string"},
				"requestMappingId":  map[string]any{"type": "string"},
				"responseMappingId": map[string]any{"type": "string"},
			}),
			Produces: []string{"apis.<stepId>.response"},
			Handler:  NewServiceTaskHandler(deps.Invoker, deps.Mapper, deps.Idempotency),
		},
		{
			Type:         TypeEnd,
			DisplayName:  "结束",
			ConfigSchema: objectSchema(nil, map[string]any{}),
			Handler:      EndHandler{},
		},
		{
			Type:        TypePass,
			DisplayName: "直通",
			Description: "合并 config.set 到上下文",
			ConfigSchema: objectSchema(nil, map[string]any{
				"set": map[string]any{"type": "object"},
			}),
			Handler: PassHandler{},
		},
	}
	for _, desc := range descriptors {
		if err := r.Register(desc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func objectSchema(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
