// Package eventbus 基于 Watermill GoChannel 的进程内事件总线
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// HandlerFunc 订阅处理函数
type HandlerFunc func(ctx context.Context, payload []byte) error

// Config 事件总线配置
type Config struct {
	OutputChannelBuffer int64
	Debug               bool
	Trace               bool
}

// Bus 事件总线（对外导出）
type Bus struct {
	pubsub  *gochannel.GoChannel
	router  *message.Router
	logger  watermill.LoggerAdapter
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewBus 创建事件总线
func NewBus(cfg Config) (*Bus, error) {
	if cfg.OutputChannelBuffer <= 0 {
		cfg.OutputChannelBuffer = 256
	}
	logger := watermill.NewStdLogger(cfg.Debug, cfg.Trace)

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            cfg.OutputChannelBuffer,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("创建消息路由器失败: %w", err)
	}

	return &Bus{
		pubsub: pubsub,
		router: router,
		logger: logger,
	}, nil
}

// Publish 发布事件，payload 为 []byte 时原样发送，否则JSON序列化
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化事件失败: %w", err)
		}
		data = encoded
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("topic", topic)
	msg.Metadata.Set("timestamp", time.Now().UTC().Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("发布事件失败: topic=%s, %w", topic, err)
	}
	return nil
}

// Subscribe 注册订阅处理器，需在 Start 之前调用
// 处理错误只记录日志并确认消息，不重投
func (b *Bus) Subscribe(handlerName, topic string, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("事件总线已启动，无法注册处理器 %s", handlerName)
	}

	b.router.AddNoPublisherHandler(
		handlerName,
		topic,
		b.pubsub,
		func(msg *message.Message) error {
			if err := handler(msg.Context(), msg.Payload); err != nil {
				log.Printf("❌ [EventBus] 处理器 %s 处理消息失败: topic=%s, MessageID=%s, Error=%v",
					handlerName, topic, msg.UUID, err)
			}
			return nil
		},
	)
	return nil
}

// Start 启动路由器并等待其就绪
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.router.Run(runCtx); err != nil {
			log.Printf("⚠️ [EventBus] 消息路由器退出: %v", err)
		}
	}()

	select {
	case <-b.router.Running():
		log.Println("✅ [EventBus] 已启动")
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("等待消息路由器启动超时")
	}
}

// Close 关闭路由器和GoChannel
func (b *Bus) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()

	if err := b.router.Close(); err != nil {
		log.Printf("⚠️ [EventBus] 关闭消息路由器失败: %v", err)
	}
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("关闭GoChannel失败: %w", err)
	}
	log.Println("✅ [EventBus] 已停止")
	return nil
}
