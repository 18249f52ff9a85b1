package dto

// StartRunRequest 启动运行请求
type StartRunRequest struct {
	DefinitionCode string         `json:"definition_code" binding:"required"`
	VersionNumber  int            `json:"version_number" binding:"omitempty,min=0"`
	Context        map[string]any `json:"context"`
	CorrelationID  string         `json:"correlation_id"`
}

// ResumeRequest 恢复运行请求
type ResumeRequest struct {
	Input map[string]any `json:"input"`
}

// SignalRequest 发送信号请求
type SignalRequest struct {
	Name    string         `json:"name" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// CorrelationSignalRequest 按业务相关ID发送信号
type CorrelationSignalRequest struct {
	CorrelationID string         `json:"correlation_id" binding:"required"`
	Name          string         `json:"name" binding:"required"`
	Payload       map[string]any `json:"payload"`
}

// CancelRequest 取消运行请求
type CancelRequest struct {
	Reason string `json:"reason"`
}

// RunListQuery 运行列表查询
type RunListQuery struct {
	DefinitionCode string `form:"definition_code"`
	Status         string `form:"status" binding:"omitempty,oneof=Running Paused Completed Failed Cancelled"`
	CorrelationID  string `form:"correlation_id"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
}

// GetDefaultLimit 获取默认limit
func (r *RunListQuery) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}

// CreateDefinitionRequest 创建工作流定义
type CreateDefinitionRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateVersionRequest 创建定义版本，Dsl为JSON文本
type CreateVersionRequest struct {
	Dsl       string `json:"dsl" binding:"required"`
	Changelog string `json:"changelog"`
}

// DryRunRequest 试运行请求，Input为JSON文本
type DryRunRequest struct {
	Input string `json:"input"`
}

// SyncRunRequest 同步执行请求
type SyncRunRequest struct {
	VersionNumber int            `json:"version_number" binding:"omitempty,min=0"`
	Form          map[string]any `json:"form"`
	Vars          map[string]any `json:"vars"`
}
