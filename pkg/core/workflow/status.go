package workflow

// RunStatus 工作流运行状态（对外导出）
type RunStatus string

const (
	RunStatusRunning   RunStatus = "Running"   // 执行中
	RunStatusPaused    RunStatus = "Paused"    // 等待外部信号
	RunStatusCompleted RunStatus = "Completed" // 已完成（终态）
	RunStatusFailed    RunStatus = "Failed"    // 已失败（终态）
	RunStatusCancelled RunStatus = "Cancelled" // 已取消（终态）
)

// String 返回状态字符串
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal 是否为终态
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// IsActive 是否为活跃状态（Running或Paused）
func (s RunStatus) IsActive() bool {
	return s == RunStatusRunning || s == RunStatusPaused
}

// IsValid 检查状态是否有效
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusPaused, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo 检查是否可以转换到目标状态
// 终态不允许任何转换；只有Paused可以回到Running
func (s RunStatus) CanTransitionTo(target RunStatus) bool {
	if s.IsTerminal() || !target.IsValid() {
		return false
	}
	if target == RunStatusRunning {
		return s == RunStatusPaused
	}
	return true
}

// StepStatus 步骤执行状态（对外导出）
type StepStatus string

const (
	StepStatusRunning   StepStatus = "Running"
	StepStatusCompleted StepStatus = "Completed"
	StepStatusFailed    StepStatus = "Failed"
	StepStatusPaused    StepStatus = "Paused"
	StepStatusCancelled StepStatus = "Cancelled"
)

// String 返回状态字符串
func (s StepStatus) String() string {
	return string(s)
}

// IsTerminal 是否为终态
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusCancelled
}

// IsActive 是否为活跃状态（活跃步骤）
func (s StepStatus) IsActive() bool {
	return s == StepStatusRunning || s == StepStatusPaused
}
