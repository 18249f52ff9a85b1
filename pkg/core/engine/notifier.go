package engine

import (
	"context"
	"log"

	"github.com/LENAX/workflow-engine/pkg/core/realtime"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/eventbus"
	"github.com/LENAX/workflow-engine/pkg/plugin"
)

// Notifier 把运行状态变化分发到实时中心、事件总线和插件
// 任一渠道为nil时跳过；分发失败只记录日志
type Notifier struct {
	hub       *realtime.Hub
	publisher types.EventPublisher
	plugins   plugin.PluginManager
}

// NewNotifier 创建通知器
func NewNotifier(hub *realtime.Hub, publisher types.EventPublisher, plugins plugin.PluginManager) *Notifier {
	return &Notifier{hub: hub, publisher: publisher, plugins: plugins}
}

// Emit 分发运行事件，run可为nil
func (n *Notifier) Emit(ctx context.Context, run *workflow.Run, event *realtime.RunEvent) {
	if n == nil || event == nil {
		return
	}
	if run != nil && event.CorrelationID == "" {
		event.WithCorrelationID(run.CorrelationID)
	}

	if n.hub != nil {
		n.hub.Publish(event)
	}

	if n.publisher != nil {
		if err := n.publisher.Publish(ctx, eventbus.TopicRunEvents, event); err != nil {
			log.Printf("⚠️ [Executor] 发布运行事件失败: RunID=%s, Type=%s, Error=%v", event.RunID, event.Type, err)
		}
	}

	if n.plugins == nil {
		return
	}
	trigger, ok := plugin.EventFromRunEvent(event.Type)
	if !ok {
		return
	}
	var code string
	var version int
	if run != nil {
		code, version = run.DefinitionCode, run.VersionNumber
	}
	if err := n.plugins.Trigger(ctx, trigger, plugin.NewPluginData(trigger, event, code, version)); err != nil {
		log.Printf("⚠️ [Executor] 插件处理事件失败: RunID=%s, Event=%s, Error=%v", event.RunID, trigger, err)
	}
}
