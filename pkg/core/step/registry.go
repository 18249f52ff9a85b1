// Package step 步骤类型注册表与内置步骤处理器
package step

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// Handler 步骤处理器（对外导出）
// 实现不应让panic或error逃逸，失败通过 Failure 返回
type Handler interface {
	Execute(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, stepDsl *dsl.StepDsl) *Result
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, stepDsl *dsl.StepDsl) *Result

// Execute 实现Handler接口
func (f HandlerFunc) Execute(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, stepDsl *dsl.StepDsl) *Result {
	return f(ctx, run, runStep, stepDsl)
}

// Descriptor 步骤类型描述
type Descriptor struct {
	Type         string         `json:"type"`
	DisplayName  string         `json:"displayName"`
	Description  string         `json:"description,omitempty"`
	ConfigSchema map[string]any `json:"configSchema,omitempty"`
	Requires     []string       `json:"requires,omitempty"`
	Produces     []string       `json:"produces,omitempty"`
	PauseSignals []string       `json:"pauseSignals,omitempty"`
	Handler      Handler        `json:"-"`
}

// ErrUnknownStepType 步骤类型未注册
var ErrUnknownStepType = errors.New("未知的步骤类型")

// Registry 步骤类型注册表，启动时构建后注入执行器
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Descriptor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// Register 注册步骤类型
func (r *Registry) Register(desc *Descriptor) error {
	if desc == nil || desc.Type == "" {
		return fmt.Errorf("步骤类型不能为空")
	}
	if desc.Handler == nil {
		return fmt.Errorf("步骤类型 %s 缺少处理器", desc.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[desc.Type]; exists {
		return fmt.Errorf("步骤类型 %s 已注册", desc.Type)
	}
	r.types[desc.Type] = desc
	return nil
}

// GetStepType 查询步骤类型
func (r *Registry) GetStepType(stepType string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.types[stepType]
	return desc, ok
}

// HasStepType 是否已注册
func (r *Registry) HasStepType(stepType string) bool {
	_, ok := r.GetStepType(stepType)
	return ok
}

// GetAllStepTypes 返回全部步骤类型（按类型名排序）
func (r *Registry) GetAllStepTypes() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Descriptor, 0, len(r.types))
	for _, desc := range r.types {
		list = append(list, desc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Type < list[j].Type })
	return list
}

// Resolve 返回步骤类型对应的处理器
func (r *Registry) Resolve(stepType string) (Handler, error) {
	desc, ok := r.GetStepType(stepType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, stepType)
	}
	return desc.Handler, nil
}
