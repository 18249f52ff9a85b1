package realtime

import (
	"sync"
	"sync/atomic"
)

// EventBuffer 订阅者事件缓冲区
// 推送非阻塞，缓冲区满时丢弃事件，慢消费者不会拖住执行器
type EventBuffer struct {
	data     chan *RunEvent
	capacity int

	// 统计
	totalIn int64 // atomic，总入队数
	dropped int64 // atomic，丢弃数

	closeOnce sync.Once
	closed    int32 // atomic
	mu        sync.RWMutex
}

// NewEventBuffer 创建事件缓冲区
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &EventBuffer{
		data:     make(chan *RunEvent, capacity),
		capacity: capacity,
	}
}

// Push 推入事件（非阻塞）
// 返回 true 表示成功，false 表示缓冲区已满或已关闭
func (b *EventBuffer) Push(event *RunEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if atomic.LoadInt32(&b.closed) == 1 {
		return false
	}
	select {
	case b.data <- event:
		atomic.AddInt64(&b.totalIn, 1)
		return true
	default:
		atomic.AddInt64(&b.dropped, 1)
		return false
	}
}

// C 事件读取通道，关闭后通道被关闭
func (b *EventBuffer) C() <-chan *RunEvent {
	return b.data
}

// Close 关闭缓冲区
func (b *EventBuffer) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		atomic.StoreInt32(&b.closed, 1)
		close(b.data)
		b.mu.Unlock()
	})
}

// Len 当前缓冲长度
func (b *EventBuffer) Len() int {
	return len(b.data)
}

// Cap 缓冲区容量
func (b *EventBuffer) Cap() int {
	return b.capacity
}

// Stats 获取统计信息
func (b *EventBuffer) Stats() (totalIn, dropped int64) {
	return atomic.LoadInt64(&b.totalIn), atomic.LoadInt64(&b.dropped)
}
