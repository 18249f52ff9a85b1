package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig 引擎框架配置（对外导出）
type EngineConfig struct {
	WorkflowEngine struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
			Cache struct {
				Enabled        bool          `yaml:"enabled"`
				DefaultTTL     time.Duration `yaml:"default_ttl"`
				CleanInterval  time.Duration `yaml:"clean_interval"`
				IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
			} `yaml:"cache"`
		} `yaml:"storage"`
		Execution struct {
			MaxChainSteps  int           `yaml:"max_chain_steps"`
			StepTimeout    time.Duration `yaml:"step_timeout"`
			RunnerMaxSteps int           `yaml:"runner_max_steps"`
		} `yaml:"execution"`
		Timers struct {
			Enabled       bool   `yaml:"enabled"`
			SweepInterval string `yaml:"sweep_interval"`
		} `yaml:"timers"`
		API struct {
			Host         string        `yaml:"host"`
			Port         int           `yaml:"port"`
			EnableCORS   bool          `yaml:"enable_cors"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"api"`
		EventBus struct {
			OutputBuffer int64 `yaml:"output_buffer"`
			Debug        bool  `yaml:"debug"`
		} `yaml:"eventbus"`
		Proxy struct {
			MethodsFile string        `yaml:"methods_file"`
			Timeout     time.Duration `yaml:"timeout"`
		} `yaml:"proxy"`
		Mapping struct {
			SetsFile string `yaml:"sets_file"`
		} `yaml:"mapping"`
		Plugins struct {
			Log struct {
				Enabled bool   `yaml:"enabled"`
				Prefix  string `yaml:"prefix"`
			} `yaml:"log"`
			Email struct {
				Enabled  bool     `yaml:"enabled"`
				SMTPHost string   `yaml:"smtp_host"`
				SMTPPort int      `yaml:"smtp_port"`
				Username string   `yaml:"username"`
				Password string   `yaml:"password"`
				From     string   `yaml:"from"`
				To       []string `yaml:"to"`
				// Events 触发邮件的事件，默认 workflow.failed
				Events []string `yaml:"events"`
			} `yaml:"email"`
		} `yaml:"plugins"`
	} `yaml:"workflow-engine"`
}

// LoadFrameworkConfig 加载框架配置：展开 ${ENV}、解析、填充默认值并校验
func LoadFrameworkConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return ParseFrameworkConfig(data)
}

// ParseFrameworkConfig 解析YAML配置内容
func ParseFrameworkConfig(data []byte) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := ValidateFrameworkConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultFrameworkConfig 全部使用默认值的配置
func DefaultFrameworkConfig() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.WorkflowEngine.Timers.Enabled = true
	cfg.ApplyDefaults()
	return cfg
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.WorkflowEngine.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.WorkflowEngine.Storage.Database.DSN
}

// GetStepTimeout 步骤处理器超时，0表示不限制
func (c *EngineConfig) GetStepTimeout() time.Duration {
	if c.WorkflowEngine.Execution.StepTimeout < 0 {
		return 0
	}
	return c.WorkflowEngine.Execution.StepTimeout
}

// GetProxyTimeout 出站API默认超时
func (c *EngineConfig) GetProxyTimeout() time.Duration {
	timeout := c.WorkflowEngine.Proxy.Timeout
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

// GetAPIAddr 监听地址
func (c *EngineConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.WorkflowEngine.API.Host, c.WorkflowEngine.API.Port)
}

// IsDebug 是否输出调试日志
func (c *EngineConfig) IsDebug() bool {
	return c.WorkflowEngine.General.LogLevel == "debug"
}

// EmailPluginParams 转换为邮件插件的初始化参数
func (c *EngineConfig) EmailPluginParams() map[string]string {
	email := c.WorkflowEngine.Plugins.Email
	return map[string]string{
		"smtp_host": email.SMTPHost,
		"smtp_port": strconv.Itoa(email.SMTPPort),
		"username":  email.Username,
		"password":  email.Password,
		"from":      email.From,
		"to":        strings.Join(email.To, ","),
	}
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	we := &c.WorkflowEngine

	// General默认值
	if we.General.InstanceName == "" {
		we.General.InstanceName = "workflow-engine"
	}
	if we.General.LogLevel == "" {
		we.General.LogLevel = "info"
	}
	if we.General.Env == "" {
		we.General.Env = "dev"
	}

	// Database默认值
	if we.Storage.Database.Type == "" {
		we.Storage.Database.Type = "sqlite"
	}
	if we.Storage.Database.DSN == "" && we.Storage.Database.Type == "sqlite" {
		we.Storage.Database.DSN = "./data/workflow-engine.db"
	}
	if we.Storage.Database.MaxOpenConns <= 0 {
		we.Storage.Database.MaxOpenConns = 10
	}
	if we.Storage.Database.MaxIdleConns <= 0 {
		we.Storage.Database.MaxIdleConns = 5
	}
	if we.Storage.Database.ConnMaxLifetime <= 0 {
		we.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if we.Storage.Database.ConnMaxIdleTime <= 0 {
		we.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}

	// Cache默认值
	if we.Storage.Cache.DefaultTTL <= 0 {
		we.Storage.Cache.DefaultTTL = 1 * time.Hour
	}
	if we.Storage.Cache.CleanInterval <= 0 {
		we.Storage.Cache.CleanInterval = 30 * time.Minute
	}
	if we.Storage.Cache.IdempotencyTTL <= 0 {
		we.Storage.Cache.IdempotencyTTL = 24 * time.Hour
	}

	// Execution默认值
	if we.Execution.MaxChainSteps <= 0 {
		we.Execution.MaxChainSteps = 1000
	}
	if we.Execution.RunnerMaxSteps <= 0 {
		we.Execution.RunnerMaxSteps = 1000
	}

	// Timers默认值
	if we.Timers.SweepInterval == "" {
		we.Timers.SweepInterval = "@every 5s"
	}

	// API默认值
	if we.API.Host == "" {
		we.API.Host = "0.0.0.0"
	}
	if we.API.Port <= 0 {
		we.API.Port = 8080
	}
	if we.API.ReadTimeout <= 0 {
		we.API.ReadTimeout = 30 * time.Second
	}
	if we.API.WriteTimeout <= 0 {
		we.API.WriteTimeout = 30 * time.Second
	}

	// EventBus默认值
	if we.EventBus.OutputBuffer <= 0 {
		we.EventBus.OutputBuffer = 256
	}

	if we.Proxy.Timeout <= 0 {
		we.Proxy.Timeout = 30 * time.Second
	}

	// Plugins默认值
	if we.Plugins.Log.Prefix == "" {
		we.Plugins.Log.Prefix = "[Notify]"
	}
	if we.Plugins.Email.SMTPPort <= 0 {
		we.Plugins.Email.SMTPPort = 25
	}
	if len(we.Plugins.Email.Events) == 0 {
		we.Plugins.Email.Events = []string{"workflow.failed"}
	}
}
