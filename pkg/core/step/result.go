package step

// Result 步骤执行结果（不持久化）
type Result struct {
	IsSuccess     bool
	IsPaused      bool
	NextStepID    string
	OutputContext map[string]any
	Error         string
}

// Success 成功结果，nextStepID为空表示流程结束
func Success(nextStepID string, output map[string]any) *Result {
	return &Result{
		IsSuccess:     true,
		NextStepID:    nextStepID,
		OutputContext: output,
	}
}

// Paused 暂停结果，等待外部信号
func Paused() *Result {
	return &Result{IsSuccess: true, IsPaused: true}
}

// PausedWith 暂停结果，并把output合并进上下文
func PausedWith(output map[string]any) *Result {
	return &Result{IsSuccess: true, IsPaused: true, OutputContext: output}
}

// Failure 失败结果
func Failure(message string) *Result {
	if message == "" {
		message = "Unknown error"
	}
	return &Result{Error: message}
}
