// Package dsl 工作流DSL的类型化表示（纯数据，无行为）
package dsl

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StartAlias 虚拟起始步骤ID，解析为 StartAt
const StartAlias = "start"

// ErrParse DSL JSON无法解析
var ErrParse = errors.New("DSL解析失败")

// WorkflowDsl 工作流定义DSL
type WorkflowDsl struct {
	StartAt string         `json:"startAt"`
	Steps   []StepDsl      `json:"steps"`
	Inputs  map[string]any `json:"inputs,omitempty"`
}

// StepDsl 单个步骤定义
type StepDsl struct {
	ID           string               `json:"id"`
	Name         string               `json:"name,omitempty"`
	Type         string               `json:"type"`
	Config       map[string]any       `json:"config,omitempty"`
	Transitions  []Transition         `json:"transitions,omitempty"`
	Compensation []CompensationAction `json:"compensation,omitempty"`
}

// Transition 步骤流转，Condition 只保存不求值
type Transition struct {
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// CompensationAction 补偿动作
type CompensationAction struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Parse 解析DSL JSON
func Parse(raw string) (*WorkflowDsl, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: DSL为空", ErrParse)
	}
	var w WorkflowDsl
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &w, nil
}

// ResolveStepID 将虚拟ID "start" 解析为 StartAt
func (w *WorkflowDsl) ResolveStepID(stepID string) string {
	if stepID == StartAlias {
		return w.StartAt
	}
	return stepID
}

// FindStep 按ID查找步骤
func (w *WorkflowDsl) FindStep(stepID string) (*StepDsl, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// StepAfter 列表顺序中的下一个步骤
func (w *WorkflowDsl) StepAfter(stepID string) (*StepDsl, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID && i+1 < len(w.Steps) {
			return &w.Steps[i+1], true
		}
	}
	return nil, false
}

// StepTypes 返回DSL中出现过的步骤类型（去重，保持顺序）
func (w *WorkflowDsl) StepTypes() []string {
	seen := make(map[string]bool)
	types := make([]string, 0)
	for _, s := range w.Steps {
		if s.Type != "" && !seen[s.Type] {
			seen[s.Type] = true
			types = append(types, s.Type)
		}
	}
	return types
}

// FirstTransition 第一个流转目标（执行器不评估条件）
func (s *StepDsl) FirstTransition() (string, bool) {
	if len(s.Transitions) == 0 || s.Transitions[0].To == "" {
		return "", false
	}
	return s.Transitions[0].To, true
}

// ConfigString 读取字符串配置
func (s *StepDsl) ConfigString(key string) string {
	return configString(s.Config, key)
}

// ConfigBool 读取布尔配置，兼容 "true" 字符串
func (s *StepDsl) ConfigBool(key string) bool {
	v, ok := s.Config[key]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	default:
		return false
	}
}

// ConfigMap 读取对象配置
func (s *StepDsl) ConfigMap(key string) map[string]any {
	if m, ok := s.Config[key].(map[string]any); ok {
		return m
	}
	return nil
}

// ConfigString 读取补偿动作的字符串配置
func (a *CompensationAction) ConfigString(key string) string {
	return configString(a.Config, key)
}

func configString(cfg map[string]any, key string) string {
	v, ok := cfg[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}
