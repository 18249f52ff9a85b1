package types

import (
	"context"

	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// ApiRequest 出站API调用参数
type ApiRequest struct {
	Headers map[string]string
	Query   map[string]string
	Body    any
}

// ApiResponse 出站API调用结果
type ApiResponse struct {
	StatusCode int
	Body       any
	Headers    map[string]string
}

// IsSuccess 状态码是否为2xx/3xx
func (r *ApiResponse) IsSuccess() bool {
	return r != nil && r.StatusCode > 0 && r.StatusCode < 400
}

// ApiInvoker 出站API调用端口（对外导出）
type ApiInvoker interface {
	// Invoke 按方法ID调用外部API
	// 只有传输层错误才返回error，HTTP错误码通过StatusCode体现
	Invoke(ctx context.Context, methodID string, req *ApiRequest) (*ApiResponse, error)
}

// MappingResult 映射结果
type MappingResult struct {
	Headers   map[string]string
	Query     map[string]string
	Body      any
	VarsPatch map[string]any
}

// Output 映射输出：优先VarsPatch，其次对象类型的Body
func (r *MappingResult) Output() map[string]any {
	if r == nil {
		return nil
	}
	if len(r.VarsPatch) > 0 {
		return r.VarsPatch
	}
	if m, ok := r.Body.(map[string]any); ok {
		return m
	}
	return nil
}

// Mapper 请求/响应映射端口（对外导出）
type Mapper interface {
	// Apply 使用指定映射集转换输入
	Apply(ctx context.Context, mappingID string, input map[string]any) (*MappingResult, error)
}

// IdempotencyStore 幂等检查端口（对外导出）
// route + key 唯一；Lookup 未命中返回 nil, nil
type IdempotencyStore interface {
	Lookup(ctx context.Context, route, key string) (*workflow.IdempotencyRecord, error)
	Save(ctx context.Context, record *workflow.IdempotencyRecord) error
}

// EventPublisher 事件发布端口（对外导出）
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// TimerScheduler 定时器登记端口（对外导出）
type TimerScheduler interface {
	ScheduleTimer(ctx context.Context, timer *workflow.Timer) error
}
