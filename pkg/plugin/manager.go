package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/workflow-engine/pkg/core/realtime"
)

// TriggerEvent 插件触发事件类型（对外导出）
type TriggerEvent string

const (
	// 运行事件
	EventWorkflowStarted     TriggerEvent = "workflow.started"     // 运行启动
	EventWorkflowCompleted   TriggerEvent = "workflow.completed"   // 运行完成
	EventWorkflowFailed      TriggerEvent = "workflow.failed"      // 运行失败
	EventWorkflowPaused      TriggerEvent = "workflow.paused"      // 运行暂停等待信号
	EventWorkflowResumed     TriggerEvent = "workflow.resumed"     // 运行恢复
	EventWorkflowCancelled   TriggerEvent = "workflow.cancelled"   // 运行取消
	EventWorkflowCompensated TriggerEvent = "workflow.compensated" // 补偿结束

	// 步骤事件
	EventStepCompleted TriggerEvent = "step.completed" // 步骤完成
	EventStepFailed    TriggerEvent = "step.failed"    // 步骤失败
)

// EventFromRunEvent 运行事件类型到插件触发事件的映射
func EventFromRunEvent(t realtime.EventType) (TriggerEvent, bool) {
	switch t {
	case realtime.EventRunStarted:
		return EventWorkflowStarted, true
	case realtime.EventRunCompleted:
		return EventWorkflowCompleted, true
	case realtime.EventRunFailed:
		return EventWorkflowFailed, true
	case realtime.EventRunPaused:
		return EventWorkflowPaused, true
	case realtime.EventRunResumed:
		return EventWorkflowResumed, true
	case realtime.EventRunCancelled:
		return EventWorkflowCancelled, true
	case realtime.EventCompensationFinished:
		return EventWorkflowCompensated, true
	case realtime.EventStepCompleted:
		return EventStepCompleted, true
	case realtime.EventStepFailed:
		return EventStepFailed, true
	default:
		return "", false
	}
}

// PluginBinding 插件绑定规则（对外导出）
type PluginBinding struct {
	PluginName string              // 插件名称
	Event      TriggerEvent        // 触发事件
	Condition  func(data any) bool // 可选：条件函数，满足条件才触发
}

// PluginData 传递给插件的数据（对外导出）
type PluginData struct {
	Event          TriggerEvent           // 触发事件
	DefinitionCode string                 // 工作流定义编码
	VersionNumber  int                    // 定义版本号
	RunID          string                 // 运行ID
	StepID         string                 // 步骤ID（如果有）
	CorrelationID  string                 // 业务相关ID（如果有）
	Status         string                 // 运行状态
	Error          string                 // 错误信息（如果有）
	Data           map[string]interface{} // 自定义数据
}

// NewPluginData 由运行事件构造插件数据
func NewPluginData(event TriggerEvent, re *realtime.RunEvent, definitionCode string, versionNumber int) PluginData {
	data := PluginData{
		Event:          event,
		DefinitionCode: definitionCode,
		VersionNumber:  versionNumber,
		RunID:          re.RunID,
		StepID:         re.StepID,
		CorrelationID:  re.CorrelationID,
		Status:         re.Status,
		Data:           make(map[string]interface{}),
	}
	switch p := re.Payload.(type) {
	case *realtime.StepFailedPayload:
		data.Error = p.Error
		data.Data["stepType"] = p.StepType
		data.Data["attempt"] = p.Attempt
	case *realtime.CompensationPayload:
		data.Data["succeeded"] = p.Succeeded
		data.Data["failed"] = p.Failed
		data.Data["skipped"] = p.Skipped
		data.Data["alreadyDone"] = p.AlreadyDone
	case string:
		data.Error = p
	}
	return data
}

// PluginManager 插件管理器接口（对外导出）
type PluginManager interface {
	Register(plugin Plugin) error
	// RegisterWithInit 注册并初始化，初始化失败时撤销注册
	RegisterWithInit(plugin Plugin, params map[string]string) error
	// Bind 把已注册插件绑定到事件
	Bind(binding PluginBinding) error
	// Trigger 依次执行事件的全部绑定，单个插件失败不影响其余插件
	Trigger(ctx context.Context, event TriggerEvent, data PluginData) error
	GetPlugin(name string) (Plugin, bool)
	ListPlugins() []string
	// Unregister 注销插件并移除其全部绑定
	Unregister(name string) error
}

type manager struct {
	mu       sync.RWMutex
	plugins  map[string]Plugin
	bindings map[TriggerEvent][]PluginBinding
}

// NewPluginManager 创建插件管理器
func NewPluginManager() PluginManager {
	return &manager{
		plugins:  make(map[string]Plugin),
		bindings: make(map[TriggerEvent][]PluginBinding),
	}
}

func (m *manager) Register(p Plugin) error {
	if p == nil || p.Name() == "" {
		return errors.New("插件为空或缺少名称")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.plugins[p.Name()]; dup {
		return fmt.Errorf("插件重复注册: %s", p.Name())
	}
	m.plugins[p.Name()] = p
	return nil
}

func (m *manager) RegisterWithInit(p Plugin, params map[string]string) error {
	if err := m.Register(p); err != nil {
		return err
	}
	if err := p.Init(params); err != nil {
		_ = m.Unregister(p.Name())
		return fmt.Errorf("插件初始化失败: %s: %w", p.Name(), err)
	}
	return nil
}

func (m *manager) Bind(b PluginBinding) error {
	if b.PluginName == "" || b.Event == "" {
		return errors.New("插件绑定缺少插件名称或事件")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugins[b.PluginName]; !ok {
		return fmt.Errorf("插件未注册: %s", b.PluginName)
	}
	m.bindings[b.Event] = append(m.bindings[b.Event], b)
	return nil
}

// target 一次触发要执行的插件快照
type target struct {
	name   string
	plugin Plugin
}

func (m *manager) Trigger(ctx context.Context, event TriggerEvent, data PluginData) error {
	m.mu.RLock()
	var targets []target
	for _, b := range m.bindings[event] {
		if p, ok := m.plugins[b.PluginName]; ok && (b.Condition == nil || b.Condition(data)) {
			targets = append(targets, target{name: b.PluginName, plugin: p})
		}
	}
	m.mu.RUnlock()

	var errs []error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := safeExecute(t.plugin, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("插件执行失败: %w", errors.Join(errs...))
	}
	return nil
}

// safeExecute 插件panic转为错误
func safeExecute(p Plugin, data PluginData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("插件panic: %v", r)
		}
	}()
	return p.Execute(data)
}

func (m *manager) GetPlugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	return p, ok
}

func (m *manager) ListPlugins() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (m *manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugins[name]; !ok {
		return fmt.Errorf("插件未注册: %s", name)
	}
	delete(m.plugins, name)
	for event, list := range m.bindings {
		kept := list[:0]
		for _, b := range list {
			if b.PluginName != name {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			delete(m.bindings, event)
		} else {
			m.bindings[event] = kept
		}
	}
	return nil
}
