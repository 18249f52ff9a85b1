package step

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// TypeServiceTask 服务调用任务
const TypeServiceTask = "ServiceTaskStep"

// ServiceTaskHandler 调用外部API并把响应映射回上下文
// 以步骤ExecutionKey做幂等，命中时直接返回已存储的输出
type ServiceTaskHandler struct {
	invoker     types.ApiInvoker
	mapper      types.Mapper
	idempotency types.IdempotencyStore
}

// NewServiceTaskHandler 创建处理器，mapper/idempotency可为nil
func NewServiceTaskHandler(invoker types.ApiInvoker, mapper types.Mapper, idempotency types.IdempotencyStore) *ServiceTaskHandler {
	return &ServiceTaskHandler{invoker: invoker, mapper: mapper, idempotency: idempotency}
}

// Execute 实现Handler接口
func (h *ServiceTaskHandler) Execute(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, stepDsl *dsl.StepDsl) *Result {
	next, _ := stepDsl.FirstTransition()

	if output, hit := h.lookup(ctx, runStep.ExecutionKey); hit {
		log.Printf("🔄 [ServiceTask] 幂等命中: StepID=%s, Key=%s", stepDsl.ID, runStep.ExecutionKey)
		return Success(next, output)
	}

	methodID := stepDsl.ConfigString("serviceMethodId")
	if methodID == "" {
		return Failure("ServiceTaskStep 缺少 serviceMethodId 配置")
	}
	if h.invoker == nil {
		return Failure("ServiceTaskStep 未配置API调用器")
	}

	runCtx, err := run.ContextMap()
	if err != nil {
		return Failure(err.Error())
	}

	req := &types.ApiRequest{Body: map[string]any{}}
	if mappingID := stepDsl.ConfigString("requestMappingId"); mappingID != "" {
		mapped, err := h.applyMapping(ctx, mappingID, runCtx)
		if err != nil {
			return Failure(fmt.Sprintf("请求映射失败: %v", err))
		}
		req.Headers = mapped.Headers
		req.Query = mapped.Query
		if mapped.Body != nil {
			req.Body = mapped.Body
		}
	}

	resp, err := h.invoker.Invoke(ctx, methodID, req)
	if err != nil {
		return Failure(fmt.Sprintf("API调用失败: %v", err))
	}
	if !resp.IsSuccess() {
		return Failure(fmt.Sprintf("API调用失败: 状态码 %d", resp.StatusCode))
	}

	var output map[string]any
	if mappingID := stepDsl.ConfigString("responseMappingId"); mappingID != "" {
		input := make(map[string]any, len(runCtx)+1)
		for k, v := range runCtx {
			input[k] = v
		}
		input["response"] = resp.Body
		mapped, err := h.applyMapping(ctx, mappingID, input)
		if err != nil {
			return Failure(fmt.Sprintf("响应映射失败: %v", err))
		}
		output = mapped.Output()
	} else {
		output = apisOutput(runCtx, stepDsl.ID, resp)
	}

	h.store(ctx, runStep.ExecutionKey, output)
	return Success(next, output)
}

// apisOutput 无响应映射时保存到 apis.<stepId>，保留其它步骤已写入的apis条目
func apisOutput(runCtx map[string]any, stepID string, resp *types.ApiResponse) map[string]any {
	apis := make(map[string]any)
	if existing, ok := runCtx["apis"].(map[string]any); ok {
		for k, v := range existing {
			apis[k] = v
		}
	}
	apis[stepID] = map[string]any{
		"response":   resp.Body,
		"statusCode": resp.StatusCode,
	}
	return map[string]any{"apis": apis}
}

func (h *ServiceTaskHandler) applyMapping(ctx context.Context, mappingID string, input map[string]any) (*types.MappingResult, error) {
	if h.mapper == nil {
		return nil, fmt.Errorf("未配置映射服务")
	}
	mapped, err := h.mapper.Apply(ctx, mappingID, input)
	if err != nil {
		return nil, err
	}
	if mapped == nil {
		mapped = &types.MappingResult{}
	}
	return mapped, nil
}

func (h *ServiceTaskHandler) lookup(ctx context.Context, key string) (map[string]any, bool) {
	if h.idempotency == nil || key == "" {
		return nil, false
	}
	record, err := h.idempotency.Lookup(ctx, TypeServiceTask, key)
	if err != nil {
		log.Printf("⚠️ [ServiceTask] 查询幂等记录失败: Key=%s, Error=%v", key, err)
		return nil, false
	}
	if record == nil || record.StatusCode < 200 || record.StatusCode >= 300 {
		return nil, false
	}
	var output map[string]any
	if record.ResponseJSON != "" {
		if err := json.Unmarshal([]byte(record.ResponseJSON), &output); err != nil {
			return nil, false
		}
	}
	return output, true
}

func (h *ServiceTaskHandler) store(ctx context.Context, key string, output map[string]any) {
	if h.idempotency == nil || key == "" {
		return
	}
	data, err := json.Marshal(output)
	if err != nil {
		log.Printf("⚠️ [ServiceTask] 序列化幂等输出失败: Key=%s, Error=%v", key, err)
		return
	}
	record := &workflow.IdempotencyRecord{
		Route:        TypeServiceTask,
		Key:          key,
		StatusCode:   200,
		ResponseJSON: string(data),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.idempotency.Save(ctx, record); err != nil {
		log.Printf("⚠️ [ServiceTask] 保存幂等记录失败: Key=%s, Error=%v", key, err)
	}
}
