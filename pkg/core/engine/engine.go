package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/cache"
	"github.com/LENAX/workflow-engine/pkg/core/realtime"
	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/step"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/eventbus"
	"github.com/LENAX/workflow-engine/pkg/plugin"
	"github.com/LENAX/workflow-engine/pkg/storage"
)

// Options 引擎装配参数
type Options struct {
	Store   storage.Store    // 必填
	Invoker types.ApiInvoker // 出站API调用，可为nil
	Mapper  types.Mapper     // 请求/响应映射，可为nil
	Bus     *eventbus.Bus    // 为nil时创建进程内事件总线，生命周期由引擎管理
	Hub     *realtime.Hub
	Plugins plugin.PluginManager

	// ExtraStepTypes 额外注册的步骤类型
	ExtraStepTypes []*step.Descriptor

	MaxChainSteps int
	StepTimeout   time.Duration

	TimersEnabled  bool
	TimerSweepSpec string

	CacheEnabled   bool
	CacheTTL       time.Duration
	CacheCleanup   time.Duration
	IdempotencyTTL time.Duration
}

// Engine 工作流引擎（对外导出）
// 装配存储、步骤注册表、执行器、事件总线与定时器扫描
type Engine struct {
	store       storage.Store
	registry    *step.Registry
	executor    *Executor
	compensator *saga.Compensator
	bus         *eventbus.Bus
	hub         *realtime.Hub
	plugins     plugin.PluginManager
	sweeper     *TimerSweeper
	idempotency types.IdempotencyStore
	caches      []*cache.MemoryResultCache
	running     bool
	mu          sync.Mutex
}

// New 创建引擎
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("引擎缺少存储")
	}

	bus := opts.Bus
	if bus == nil {
		var err error
		bus, err = eventbus.NewBus(eventbus.Config{})
		if err != nil {
			return nil, err
		}
	}
	hub := opts.Hub
	if hub == nil {
		hub = realtime.NewHub(64)
	}
	plugins := opts.Plugins
	if plugins == nil {
		plugins = plugin.NewPluginManager()
	}

	eng := &Engine{
		store:   opts.Store,
		bus:     bus,
		hub:     hub,
		plugins: plugins,
	}

	var idempotency types.IdempotencyStore = opts.Store
	var execOpts []ExecutorOption
	if opts.CacheEnabled {
		dslCache := cache.NewMemoryResultCache(opts.CacheCleanup)
		idemCache := cache.NewMemoryResultCache(opts.CacheCleanup)
		eng.caches = append(eng.caches, dslCache, idemCache)
		idempotency = cache.NewCachedIdempotencyStore(opts.Store, idemCache, opts.IdempotencyTTL)
		execOpts = append(execOpts, WithDslCache(dslCache, opts.CacheTTL))
	}

	registry, err := step.NewDefaultRegistry(step.Deps{
		Invoker:     opts.Invoker,
		Mapper:      opts.Mapper,
		Idempotency: idempotency,
		Publisher:   bus,
		Timers:      opts.Store,
	})
	if err != nil {
		return nil, err
	}
	for _, desc := range opts.ExtraStepTypes {
		if err := registry.Register(desc); err != nil {
			return nil, err
		}
	}
	eng.registry = registry
	eng.idempotency = idempotency
	eng.compensator = saga.NewDefaultCompensator(opts.Store, opts.Invoker, bus)

	execOpts = append(execOpts,
		WithNotifier(NewNotifier(hub, bus, plugins)),
		WithMaxChainSteps(opts.MaxChainSteps),
		WithStepTimeout(opts.StepTimeout),
	)
	eng.executor = NewExecutor(opts.Store, registry, eng.compensator, execOpts...)

	if opts.TimersEnabled {
		sweeper, err := NewTimerSweeper(eng.executor, opts.TimerSweepSpec)
		if err != nil {
			return nil, err
		}
		eng.sweeper = sweeper
	}
	return eng, nil
}

// Start 启动引擎：注册事件订阅、启动事件总线、补扫到期定时器并报告孤立步骤
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	if err := eventbus.RegisterWorkflowSubscribers(e.bus, e.executor); err != nil {
		return fmt.Errorf("注册事件订阅失败: %w", err)
	}
	if err := e.bus.Start(ctx); err != nil {
		return fmt.Errorf("启动事件总线失败: %w", err)
	}

	if e.sweeper != nil {
		if fired, err := e.sweeper.SweepOnce(ctx); err != nil {
			log.Printf("⚠️ [Engine] 启动时补扫定时器失败: %v", err)
		} else if fired > 0 {
			log.Printf("🔄 [Engine] 启动时补触发定时器: %d", fired)
		}
		if err := e.sweeper.Start(); err != nil {
			return err
		}
	}

	e.reportOrphans(ctx)
	e.running = true
	log.Println("✅ [Engine] 工作流引擎已启动")
	return nil
}

// reportOrphans 记录重启前正在执行的步骤，由运维决定恢复或取消
func (e *Engine) reportOrphans(ctx context.Context) {
	runs, err := e.store.ListRunsByStatus(ctx, workflow.RunStatusRunning)
	if err != nil {
		log.Printf("⚠️ [Engine] 查询运行中的实例失败: %v", err)
		return
	}
	for _, run := range runs {
		steps, err := e.store.ListRunSteps(ctx, run.ID)
		if err != nil {
			log.Printf("⚠️ [Engine] 查询步骤记录失败: RunID=%s, Error=%v", run.ID, err)
			continue
		}
		if active := latestActiveStep(steps); active != nil && active.Status == workflow.StepStatusRunning {
			log.Printf("⚠️ [Engine] 发现孤立步骤，需要人工恢复或取消: RunID=%s, StepID=%s, Attempt=%d",
				run.ID, active.StepID, active.Attempts)
		}
	}
}

// Stop 停止引擎，存储由调用方关闭
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	if err := e.bus.Close(); err != nil {
		log.Printf("⚠️ [Engine] 关闭事件总线失败: %v", err)
	}
	e.hub.Close()
	for _, c := range e.caches {
		c.Close()
	}
	e.running = false
	log.Println("✅ [Engine] 工作流引擎已停止")
}

// Executor 执行器
func (e *Engine) Executor() *Executor {
	return e.executor
}

// Registry 步骤类型注册表
func (e *Engine) Registry() *step.Registry {
	return e.registry
}

// Store 存储
func (e *Engine) Store() storage.Store {
	return e.store
}

// Bus 事件总线
func (e *Engine) Bus() *eventbus.Bus {
	return e.bus
}

// Hub 实时事件中心
func (e *Engine) Hub() *realtime.Hub {
	return e.hub
}

// Plugins 插件管理器
func (e *Engine) Plugins() plugin.PluginManager {
	return e.plugins
}

// Idempotency 幂等存储，启用缓存时带读缓存
func (e *Engine) Idempotency() types.IdempotencyStore {
	return e.idempotency
}

// Sweeper 定时器扫描器，未启用时为nil
func (e *Engine) Sweeper() *TimerSweeper {
	return e.sweeper
}
