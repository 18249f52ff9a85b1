package eventbus

// 事件总线主题
const (
	TopicFormSubmitted      = "FormSubmitted"
	TopicHumanTaskRequested = "HumanTaskRequested"
	TopicHumanTaskCompleted = "HumanTaskCompleted"
	TopicRunEvents          = "workflow.run.events"
)

// FormSubmitted 表单提交事件
// WorkflowRunID 为空时按 CorrelationID 路由
type FormSubmitted struct {
	WorkflowRunID string         `json:"workflowRunId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	SubmissionID  string         `json:"submissionId"`
	FormID        string         `json:"formId,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// HumanTaskRequested 人工任务创建请求
type HumanTaskRequested struct {
	TaskID        string `json:"taskId"`
	WorkflowRunID string `json:"workflowRunId"`
	StepID        string `json:"stepId"`
	AssigneeType  string `json:"assigneeType"`
	AssigneeID    string `json:"assigneeId"`
	Title         string `json:"title,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// HumanTaskCompleted 人工任务完成事件
type HumanTaskCompleted struct {
	TaskID        string         `json:"taskId"`
	WorkflowRunID string         `json:"workflowRunId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// CompensationEvent customevent 补偿动作发布的事件体
type CompensationEvent struct {
	WorkflowRunID string         `json:"workflowRunId"`
	StepID        string         `json:"stepId"`
	Action        string         `json:"action"`
	Config        map[string]any `json:"config,omitempty"`
}
