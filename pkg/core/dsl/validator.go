package dsl

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/begmaroman/go-dag"
)

// StepTypeChecker 判断步骤类型是否已注册
type StepTypeChecker func(stepType string) bool

// ValidationIssue 校验问题
type ValidationIssue struct {
	StepID  string `json:"stepId,omitempty"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.StepID == "" {
		return i.Message
	}
	return fmt.Sprintf("[%s] %s", i.StepID, i.Message)
}

// ValidationResult 校验结果，Warnings 不影响发布
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// Valid 是否通过校验
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err 将所有错误合并为一个error
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		msgs = append(msgs, issue.String())
	}
	return errors.New("DSL校验失败: " + strings.Join(msgs, "; "))
}

func (r *ValidationResult) addError(stepID, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationIssue{StepID: stepID, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(stepID, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationIssue{StepID: stepID, Message: fmt.Sprintf(format, args...)})
}

// stepNode go-dag 节点
// go-dag 默认按导出字段计算节点哈希，StepID 必须导出
type stepNode struct {
	StepID string
}

// ID 实现 go-dag 的节点标识接口
func (n *stepNode) ID() string {
	return n.StepID
}

// Validate 校验DSL结构
// known 为nil时跳过步骤类型检查
func Validate(w *WorkflowDsl, known StepTypeChecker) *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]ValidationIssue, 0),
		Warnings: make([]ValidationIssue, 0),
	}
	if w == nil {
		result.addError("", "DSL为空")
		return result
	}
	if len(w.Steps) == 0 {
		result.addError("", "DSL必须至少包含一个步骤")
		return result
	}

	ids := make(map[string]bool, len(w.Steps))
	for i, s := range w.Steps {
		if s.ID == "" {
			result.addError("", "第 %d 个步骤缺少id", i+1)
			continue
		}
		if s.ID == StartAlias {
			result.addError(s.ID, "步骤id不能使用保留字 %q", StartAlias)
		}
		if ids[s.ID] {
			result.addError(s.ID, "步骤id重复")
		}
		ids[s.ID] = true

		if s.Type == "" {
			result.addError(s.ID, "步骤缺少type")
		} else if known != nil && !known(s.Type) {
			result.addError(s.ID, "未知的步骤类型 %q", s.Type)
		}
		for j, a := range s.Compensation {
			if a.Type == "" {
				result.addError(s.ID, "第 %d 个补偿动作缺少type", j+1)
			}
		}
		for _, t := range s.Transitions {
			if t.Condition != "" {
				result.addWarning(s.ID, "流转条件不会被求值，始终选择第一个流转")
				break
			}
		}
	}

	if w.StartAt == "" {
		result.addError("", "缺少startAt")
	} else if !ids[w.StartAt] {
		result.addError("", "startAt指向不存在的步骤 %q", w.StartAt)
	}

	for _, s := range w.Steps {
		for _, t := range s.Transitions {
			if t.To == "" {
				result.addError(s.ID, "流转缺少目标步骤")
			} else if !ids[t.To] {
				result.addError(s.ID, "流转目标步骤 %q 不存在", t.To)
			}
		}
	}

	if !result.Valid() {
		return result
	}

	validateGraph(w, result)
	return result
}

// validateGraph 用go-dag检测循环并找出不可达步骤
func validateGraph(w *WorkflowDsl, result *ValidationResult) {
	d := dag.NewDAG[*stepNode]()
	for _, s := range w.Steps {
		if _, err := d.AddVertex(&stepNode{StepID: s.ID}); err != nil {
			result.addError(s.ID, "添加节点失败: %v", err)
			return
		}
	}

	for _, s := range w.Steps {
		for _, t := range s.Transitions {
			if t.To == s.ID {
				result.addError(s.ID, "检测到循环: %s -> %s", s.ID, t.To)
				continue
			}
			if isEdge, _ := d.IsEdge(s.ID, t.To); isEdge {
				continue
			}
			if err := d.AddEdge(s.ID, t.To); err != nil {
				result.addError(s.ID, "检测到循环: %s -> %s (%v)", s.ID, t.To, err)
			}
		}
	}
	if !result.Valid() {
		return
	}

	// 从startAt出发广度遍历
	visited := map[string]bool{w.StartAt: true}
	queue := []string{w.StartAt}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := d.GetChildren(current)
		if err != nil {
			continue
		}
		for childID := range children {
			if !visited[childID] {
				visited[childID] = true
				queue = append(queue, childID)
			}
		}
	}

	unreachable := make([]string, 0)
	for _, s := range w.Steps {
		if !visited[s.ID] {
			unreachable = append(unreachable, s.ID)
		}
	}
	sort.Strings(unreachable)
	for _, id := range unreachable {
		result.addWarning(id, "步骤从startAt不可达")
	}
}
