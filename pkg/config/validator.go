package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

var sweepParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateFrameworkConfig 校验框架配置合法性
func ValidateFrameworkConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	we := &cfg.WorkflowEngine

	// 校验General
	if we.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[we.General.LogLevel] {
		return fmt.Errorf("log_level必须是debug/info/warn/error之一")
	}

	// 校验Storage.Database
	validDBTypes := map[string]bool{
		"sqlite":     true,
		"sqlite3":    true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[we.Storage.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if we.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if we.Storage.Database.MaxIdleConns > we.Storage.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns不能大于max_open_conns")
	}

	// 校验Execution
	if we.Execution.StepTimeout < 0 {
		return fmt.Errorf("execution.step_timeout不能为负数")
	}

	// 校验Timers
	if we.Timers.Enabled {
		if _, err := sweepParser.Parse(we.Timers.SweepInterval); err != nil {
			return fmt.Errorf("timers.sweep_interval无效: %w", err)
		}
	}

	// 校验API
	if we.API.Port > 65535 {
		return fmt.Errorf("api.port超出范围: %d", we.API.Port)
	}

	// 校验Plugins
	email := we.Plugins.Email
	if email.Enabled {
		if email.SMTPHost == "" || email.From == "" || len(email.To) == 0 {
			return fmt.Errorf("plugins.email启用时smtp_host/from/to不能为空")
		}
	}
	return nil
}
