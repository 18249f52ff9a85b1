package runner

// 步骤状态
const (
	StepSuccess = "Success"
	StepFailed  = "Failed"
)

// StepState 单个步骤的执行记录
type StepState struct {
	Status   string `json:"status"`
	Request  any    `json:"request,omitempty"`
	Response any    `json:"response,omitempty"`
}

// ExecutionContext 同步执行的上下文
type ExecutionContext struct {
	Vars  map[string]any        `json:"vars"`
	Steps map[string]*StepState `json:"steps"`
	Form  map[string]any        `json:"form"`
}

// NewExecutionContext 创建上下文，复制调用方传入的map
func NewExecutionContext(form, vars map[string]any) *ExecutionContext {
	return &ExecutionContext{
		Vars:  copyMap(vars),
		Steps: make(map[string]*StepState),
		Form:  copyMap(form),
	}
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// AsMap 映射输入视图 {vars, steps, form}
func (c *ExecutionContext) AsMap() map[string]any {
	steps := make(map[string]any, len(c.Steps))
	for id, s := range c.Steps {
		entry := map[string]any{"status": s.Status}
		if s.Request != nil {
			entry["request"] = s.Request
		}
		if s.Response != nil {
			entry["response"] = s.Response
		}
		steps[id] = entry
	}
	return map[string]any{
		"vars":  c.Vars,
		"steps": steps,
		"form":  c.Form,
	}
}

// ApplyVarsPatch 合并变量补丁，只覆盖不删除
func (c *ExecutionContext) ApplyVarsPatch(patch map[string]any) {
	for k, v := range patch {
		c.Vars[k] = v
	}
}
