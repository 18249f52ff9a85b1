// Package app 按框架配置装配服务端全部组件
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LENAX/workflow-engine/internal/storage"
	"github.com/LENAX/workflow-engine/pkg/api"
	"github.com/LENAX/workflow-engine/pkg/apiproxy"
	"github.com/LENAX/workflow-engine/pkg/config"
	"github.com/LENAX/workflow-engine/pkg/core/definition"
	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/core/mapping"
	"github.com/LENAX/workflow-engine/pkg/core/realtime"
	"github.com/LENAX/workflow-engine/pkg/core/runner"
	"github.com/LENAX/workflow-engine/pkg/eventbus"
	"github.com/LENAX/workflow-engine/pkg/plugin"
	pkgstorage "github.com/LENAX/workflow-engine/pkg/storage"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlstore"
)

// App 装配完成的服务端
type App struct {
	Config *config.EngineConfig
	Store  pkgstorage.Store
	Engine *engine.Engine
	Admin  *definition.AdminService
	Runner *runner.Runner
	Server *api.APIServer
}

// New 按配置创建存储、目录、插件、引擎与API服务器，失败时释放已创建的资源
func New(cfg *config.EngineConfig, version string) (*App, error) {
	we := cfg.WorkflowEngine

	store, err := storage.NewStore(storage.DatabaseOptions{
		Type: we.Storage.Database.Type,
		DSN:  we.Storage.Database.DSN,
		Pool: sqlstore.PoolOptions{
			MaxOpenConns:    we.Storage.Database.MaxOpenConns,
			MaxIdleConns:    we.Storage.Database.MaxIdleConns,
			ConnMaxLifetime: we.Storage.Database.ConnMaxLifetime,
			ConnMaxIdleTime: we.Storage.Database.ConnMaxIdleTime,
		},
	})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: store}

	if err := a.build(version); err != nil {
		a.closeStore()
		return nil, err
	}
	return a, nil
}

func (a *App) build(version string) error {
	we := a.Config.WorkflowEngine

	methods, err := loadMethods(we.Proxy.MethodsFile)
	if err != nil {
		return err
	}
	sets, err := loadMappingSets(we.Mapping.SetsFile)
	if err != nil {
		return err
	}
	proxy := apiproxy.NewProxy(methods, a.Config.GetProxyTimeout())
	mapper := mapping.NewMapper(sets)

	plugins, err := buildPlugins(a.Config)
	if err != nil {
		return err
	}

	bus, err := eventbus.NewBus(eventbus.Config{
		OutputChannelBuffer: we.EventBus.OutputBuffer,
		Debug:               we.EventBus.Debug,
	})
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Store:          a.Store,
		Invoker:        proxy,
		Mapper:         mapper,
		Bus:            bus,
		Hub:            realtime.NewHub(int(we.EventBus.OutputBuffer)),
		Plugins:        plugins,
		MaxChainSteps:  we.Execution.MaxChainSteps,
		StepTimeout:    a.Config.GetStepTimeout(),
		TimersEnabled:  we.Timers.Enabled,
		TimerSweepSpec: we.Timers.SweepInterval,
		CacheEnabled:   we.Storage.Cache.Enabled,
		CacheTTL:       we.Storage.Cache.DefaultTTL,
		CacheCleanup:   we.Storage.Cache.CleanInterval,
		IdempotencyTTL: we.Storage.Cache.IdempotencyTTL,
	})
	if err != nil {
		return err
	}
	a.Engine = eng
	a.Admin = definition.NewAdminService(a.Store, definition.AnyOf(eng.Registry().HasStepType, runner.SupportsStepType))
	a.Runner = runner.New(a.Store, proxy, mapper, we.Execution.RunnerMaxSteps)
	a.Server = api.NewAPIServer(api.Services{
		Engine: eng,
		Admin:  a.Admin,
		Runner: a.Runner,
	}, api.ServerConfig{
		Host:           we.API.Host,
		Port:           we.API.Port,
		ReadTimeout:    we.API.ReadTimeout,
		WriteTimeout:   we.API.WriteTimeout,
		EnableCORS:     we.API.EnableCORS,
		IdempotencyTTL: we.Storage.Cache.IdempotencyTTL,
	}, version)

	log.Printf("✅ [App] 组件装配完成: DB=%s, Methods=%d, MappingSets=%d, Plugins=%v",
		we.Storage.Database.Type, len(methods.Methods), len(sets.Sets), plugins.ListPlugins())
	return nil
}

func loadMethods(path string) (*apiproxy.Catalog, error) {
	if path == "" {
		return apiproxy.NewCatalog()
	}
	catalog, err := apiproxy.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("加载API方法目录失败: %w", err)
	}
	return catalog, nil
}

func loadMappingSets(path string) (*mapping.Catalog, error) {
	if path == "" {
		return mapping.NewCatalog()
	}
	catalog, err := mapping.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("加载映射集失败: %w", err)
	}
	return catalog, nil
}

// buildPlugins 日志插件绑定全部事件，邮件插件只绑定配置的事件
func buildPlugins(cfg *config.EngineConfig) (plugin.PluginManager, error) {
	pm := plugin.NewPluginManager()
	pluginsCfg := cfg.WorkflowEngine.Plugins

	if pluginsCfg.Log.Enabled {
		if err := pm.RegisterWithInit(plugin.NewLogPlugin(), map[string]string{"prefix": pluginsCfg.Log.Prefix}); err != nil {
			return nil, err
		}
		for _, event := range []plugin.TriggerEvent{
			plugin.EventWorkflowStarted,
			plugin.EventWorkflowCompleted,
			plugin.EventWorkflowFailed,
			plugin.EventWorkflowPaused,
			plugin.EventWorkflowResumed,
			plugin.EventWorkflowCancelled,
			plugin.EventWorkflowCompensated,
		} {
			if err := pm.Bind(plugin.PluginBinding{PluginName: "log", Event: event}); err != nil {
				return nil, err
			}
		}
	}

	if pluginsCfg.Email.Enabled {
		email := plugin.NewEmailPlugin()
		if err := pm.RegisterWithInit(email, cfg.EmailPluginParams()); err != nil {
			return nil, err
		}
		for _, event := range pluginsCfg.Email.Events {
			if err := pm.Bind(plugin.PluginBinding{PluginName: email.Name(), Event: plugin.TriggerEvent(event)}); err != nil {
				return nil, err
			}
		}
	}
	return pm, nil
}

// Start 启动引擎，API服务器由调用方在独立goroutine中启动
func (a *App) Start(ctx context.Context) error {
	return a.Engine.Start(ctx)
}

// Shutdown 依次关闭API服务器、引擎与存储
func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ [App] 关闭API服务器失败: %v", err)
	}
	a.Engine.Stop()
	a.closeStore()
}

func (a *App) closeStore() {
	if closer, ok := a.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Printf("⚠️ [App] 关闭存储失败: %v", err)
		}
	}
}
