package realtime

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Subscription 事件订阅
type Subscription struct {
	ID     string
	RunID  string // 为空表示订阅全部运行
	buffer *EventBuffer
	hub    *Hub
}

// Events 事件通道，取消订阅后关闭
func (s *Subscription) Events() <-chan *RunEvent {
	return s.buffer.C()
}

// Dropped 因缓冲区满丢弃的事件数
func (s *Subscription) Dropped() int64 {
	_, dropped := s.buffer.Stats()
	return dropped
}

// Close 取消订阅
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub 运行事件分发中心（对外导出）
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
}

// NewHub 创建事件中心
func NewHub(bufferSize int) *Hub {
	return &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe 订阅某个运行的事件，runID为空订阅全部
func (h *Hub) Subscribe(runID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		RunID:  runID,
		buffer: NewEventBuffer(h.bufferSize),
		hub:    h,
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	h.mu.Unlock()
	if ok {
		sub.buffer.Close()
	}
}

// Publish 分发事件，不阻塞
func (h *Hub) Publish(event *RunEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.RunID != "" && sub.RunID != event.RunID {
			continue
		}
		if !sub.buffer.Push(event) {
			log.Printf("⚠️ [Realtime] 订阅者缓冲区已满，丢弃事件: SubID=%s, RunID=%s, Type=%s", sub.ID, event.RunID, event.Type)
		}
	}
}

// SubscriberCount 当前订阅数
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close 关闭全部订阅
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.buffer.Close()
	}
}
