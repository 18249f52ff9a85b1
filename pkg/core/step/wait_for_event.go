package step

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// TypeWaitForEvent 等待外部事件
const TypeWaitForEvent = "WaitForEvent"

// TimeoutSignalSuffix 超时信号名后缀
const TimeoutSignalSuffix = ".Timeout"

// WaitForEventHandler 暂停运行直到收到信号；可选超时由定时器触发
type WaitForEventHandler struct {
	timers types.TimerScheduler
}

// NewWaitForEventHandler 创建处理器，timers可为nil（不支持超时）
func NewWaitForEventHandler(timers types.TimerScheduler) *WaitForEventHandler {
	return &WaitForEventHandler{timers: timers}
}

// Execute 实现Handler接口
func (h *WaitForEventHandler) Execute(ctx context.Context, run *workflow.Run, runStep *workflow.RunStep, stepDsl *dsl.StepDsl) *Result {
	eventName := stepDsl.ConfigString("eventName")
	if eventName == "" {
		return Failure("WaitForEvent 步骤缺少 eventName 配置")
	}

	if raw := stepDsl.ConfigString("timeout"); raw != "" {
		timeout, err := ParseTimeout(raw)
		if err != nil {
			return Failure(fmt.Sprintf("WaitForEvent 超时配置无效: %v", err))
		}
		if h.timers == nil {
			log.Printf("⚠️ [WaitForEvent] 未配置定时器，忽略超时: RunID=%s, StepID=%s", run.ID, stepDsl.ID)
		} else {
			timer := workflow.NewTimer(run.ID, stepDsl.ID, eventName+TimeoutSignalSuffix, time.Now().Add(timeout))
			if err := h.timers.ScheduleTimer(ctx, timer); err != nil {
				return Failure(fmt.Sprintf("登记超时定时器失败: %v", err))
			}
		}
	}

	log.Printf("⏸️ [WaitForEvent] 等待事件 %s: RunID=%s, StepID=%s", eventName, run.ID, stepDsl.ID)
	return Paused()
}

// ParseTimeout 解析超时配置，支持Go时长（30s、1h）和 HH:MM:SS
func ParseTimeout(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("超时必须大于0: %s", raw)
		}
		return d, nil
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("无法解析超时: %s", raw)
	}
	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("无法解析超时: %s", raw)
		}
		total += time.Duration(n) * units[i]
	}
	if total <= 0 {
		return 0, fmt.Errorf("超时必须大于0: %s", raw)
	}
	return total, nil
}
