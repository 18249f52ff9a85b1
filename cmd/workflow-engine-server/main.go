package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LENAX/workflow-engine/internal/app"
	"github.com/LENAX/workflow-engine/pkg/config"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/workflow-engine.yaml", "引擎配置文件路径，为空时使用默认配置")
	host := flag.String("host", "", "覆盖配置中的监听地址")
	port := flag.Int("port", 0, "覆盖配置中的监听端口")
	flag.Parse()

	log.Printf("Workflow Engine Server v%s (commit %s, built %s)", Version, GitCommit, BuildTime)

	// 1. 加载配置
	cfg := config.DefaultFrameworkConfig()
	if *configPath != "" {
		if _, err := os.Stat(*configPath); err == nil {
			loaded, err := config.LoadFrameworkConfig(*configPath)
			if err != nil {
				log.Fatalf("加载配置失败: %v", err)
			}
			cfg = loaded
			log.Printf("配置文件: %s", *configPath)
		} else {
			log.Printf("⚠️ 配置文件不存在，使用默认配置: %s", *configPath)
		}
	}
	if *host != "" {
		cfg.WorkflowEngine.API.Host = *host
	}
	if *port > 0 {
		cfg.WorkflowEngine.API.Port = *port
	}
	if err := config.ValidateFrameworkConfig(cfg); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	// 2. 装配并启动引擎
	application, err := app.New(cfg, Version)
	if err != nil {
		log.Fatalf("创建服务失败: %v", err)
	}
	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.Fatalf("启动Engine失败: %v", err)
	}

	// 3. 在goroutine中启动API服务器
	go func() {
		if err := application.Server.Start(); err != nil {
			log.Printf("API服务器错误: %v", err)
		}
	}()

	log.Printf("✅ Workflow Engine Server started on %s", application.Server.Addr())

	// 4. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 5. 优雅关闭
	application.Shutdown(cfg.WorkflowEngine.API.WriteTimeout)
	log.Println("✅ 服务已停止")
}
