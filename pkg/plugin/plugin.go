package plugin

import (
	"fmt"
	"log"
)

// Plugin 插件基础接口（对外导出）
type Plugin interface {
	// Name 插件名称（对外导出）
	Name() string
	// Init 初始化插件（对外导出）
	Init(params map[string]string) error
	// Execute 执行插件逻辑（对外导出），data 为 PluginData
	Execute(data interface{}) error
}

// LogPlugin 把通知写入日志的插件，未配置邮件时作为默认通知渠道
type LogPlugin struct {
	prefix string
}

// NewLogPlugin 创建日志插件（对外导出）
func NewLogPlugin() Plugin {
	return &LogPlugin{prefix: "[Notify]"}
}

// Name 插件名称
func (p *LogPlugin) Name() string {
	return "log"
}

// Init 初始化插件，可选参数 prefix
func (p *LogPlugin) Init(params map[string]string) error {
	if v := params["prefix"]; v != "" {
		p.prefix = v
	}
	return nil
}

// Execute 输出通知日志
func (p *LogPlugin) Execute(data interface{}) error {
	d, ok := data.(PluginData)
	if !ok {
		return fmt.Errorf("插件数据类型错误")
	}
	if d.Error != "" {
		log.Printf("📣 %s %s: Definition=%s, RunID=%s, StepID=%s, Status=%s, Error=%s",
			p.prefix, d.Event, d.DefinitionCode, d.RunID, d.StepID, d.Status, d.Error)
		return nil
	}
	log.Printf("📣 %s %s: Definition=%s, RunID=%s, StepID=%s, Status=%s",
		p.prefix, d.Event, d.DefinitionCode, d.RunID, d.StepID, d.Status)
	return nil
}
