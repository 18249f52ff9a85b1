package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/core/realtime"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StreamHandler 通过WebSocket推送运行事件
type StreamHandler struct {
	hub      *realtime.Hub
	executor *engine.Executor
	upgrader websocket.Upgrader
}

// NewStreamHandler 创建StreamHandler
func NewStreamHandler(hub *realtime.Hub, executor *engine.Executor) *StreamHandler {
	return &StreamHandler{
		hub:      hub,
		executor: executor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream 订阅单个运行的事件，运行结束后由服务端关闭连接
// GET /api/v1/runs/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	runID := c.Param("id")
	run, err := h.executor.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ [Stream] WebSocket升级失败: RunID=%s, Error=%v", runID, err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(runID)
	defer sub.Close()
	log.Printf("🔌 [Stream] 客户端已订阅: RunID=%s, SubID=%s", runID, sub.ID)

	// 已结束的运行只推送一次当前状态
	if run.Status.IsTerminal() {
		_ = h.write(conn, realtime.NewRunEvent(terminalEventType(run.Status.String()), run.ID, "", run.Status.String(), nil))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(streamWriteWait))
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("⚠️ [Stream] 读取失败: RunID=%s, Error=%v", runID, err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := h.write(conn, event); err != nil {
				return
			}
			if event.IsTerminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(streamWriteWait))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-closed:
			log.Printf("🔌 [Stream] 客户端断开: RunID=%s, Dropped=%d", runID, sub.Dropped())
			return
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, event *realtime.RunEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(event)
}

func terminalEventType(status string) realtime.EventType {
	switch status {
	case "Completed":
		return realtime.EventRunCompleted
	case "Failed":
		return realtime.EventRunFailed
	default:
		return realtime.EventRunCancelled
	}
}
