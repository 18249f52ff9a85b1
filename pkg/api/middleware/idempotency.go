package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// IdempotencyHeader 幂等键请求头
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader 标记响应来自幂等回放
const ReplayedHeader = "Idempotent-Replayed"

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency 幂等键中间件
// 同一路由同一键：请求体一致时回放首次的成功响应，不一致返回409；只保存2xx响应
func Idempotency(store types.IdempotencyStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || store == nil {
			c.Next()
			return
		}
		route := c.Request.Method + " " + c.FullPath()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(400, "读取请求体失败"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		bodyHash := hex.EncodeToString(sum[:])

		rec, err := store.Lookup(c.Request.Context(), route, key)
		if err != nil {
			log.Printf("❌ [Idempotency] 查询幂等记录失败: Route=%s, Key=%s, Error=%v", route, key, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(500, "查询幂等记录失败"))
			return
		}
		if rec != nil {
			if rec.BodyHash != bodyHash {
				c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponse(409, "幂等键已被不同的请求使用"))
				return
			}
			log.Printf("🔁 [Idempotency] 回放响应: Route=%s, Key=%s", route, key)
			c.Header(ReplayedHeader, "true")
			c.Data(rec.StatusCode, "application/json; charset=utf-8", []byte(rec.ResponseJSON))
			c.Abort()
			return
		}

		writer := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		now := time.Now().UTC()
		record := &workflow.IdempotencyRecord{
			Route:        route,
			Key:          key,
			BodyHash:     bodyHash,
			StatusCode:   status,
			ResponseJSON: writer.body.String(),
			CreatedAt:    now,
		}
		if ttl > 0 {
			expires := now.Add(ttl)
			record.ExpiresAt = &expires
		}
		if err := store.Save(c.Request.Context(), record); err != nil {
			log.Printf("⚠️ [Idempotency] 保存幂等记录失败: Route=%s, Key=%s, Error=%v", route, key, err)
		}
	}
}
