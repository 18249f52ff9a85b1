package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-engine/pkg/api/handler"
	"github.com/LENAX/workflow-engine/pkg/api/middleware"
	"github.com/LENAX/workflow-engine/pkg/core/definition"
	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/core/runner"
)

// Services 路由依赖的服务
type Services struct {
	Engine *engine.Engine
	Admin  *definition.AdminService
	Runner *runner.Runner // 为nil时不注册同步执行路由
}

type pinger interface {
	Ping(ctx context.Context) error
}

// SetupRouter 设置路由
func SetupRouter(svc Services, config ServerConfig, version string) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	if config.EnableCORS {
		router.Use(middleware.CORS())
	}

	eng := svc.Engine
	var probe handler.ReadyProbe
	if p, ok := eng.Store().(pinger); ok {
		probe = p.Ping
	}

	// 创建handlers
	runHandler := handler.NewRunHandler(eng.Executor())
	streamHandler := handler.NewStreamHandler(eng.Hub(), eng.Executor())
	definitionHandler := handler.NewDefinitionHandler(svc.Admin)
	stepTypeHandler := handler.NewStepTypeHandler(eng.Registry())
	healthHandler := handler.NewHealthHandler(version, probe)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// Run路由
		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.List)
			runs.POST("", middleware.Idempotency(eng.Idempotency(), config.IdempotencyTTL), runHandler.Start)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/history", runHandler.History)
			runs.GET("/:id/stream", streamHandler.Stream)
			runs.POST("/:id/resume", runHandler.Resume)
			runs.POST("/:id/signals", runHandler.Signal)
			runs.POST("/:id/cancel", runHandler.Cancel)
		}
		v1.POST("/signals/correlation", runHandler.SignalByCorrelation)

		v1.GET("/step-types", stepTypeHandler.List)
		v1.GET("/step-types/:type", stepTypeHandler.Get)

		// Definition路由
		definitions := v1.Group("/definitions")
		{
			definitions.GET("", definitionHandler.List)
			definitions.POST("", definitionHandler.Create)
			definitions.GET("/:code", definitionHandler.Get)
			definitions.GET("/:code/versions", definitionHandler.ListVersions)
			definitions.POST("/:code/versions", definitionHandler.CreateVersion)
			definitions.GET("/:code/versions/:version", definitionHandler.GetVersion)
			definitions.POST("/:code/versions/:version/publish", definitionHandler.Publish)
			definitions.POST("/:code/versions/:version/unpublish", definitionHandler.Unpublish)
			definitions.POST("/:code/versions/:version/dry-run", definitionHandler.DryRun)
		}

		if svc.Runner != nil {
			runnerHandler := handler.NewRunnerHandler(svc.Runner)
			v1.POST("/runner/:code/run", runnerHandler.Run)
		}
	}

	return router
}
