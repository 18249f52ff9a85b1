package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger 请求日志中间件
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		icon := "➡️"
		if status >= 500 {
			icon = "❌"
		} else if status >= 400 {
			icon = "⚠️"
		}
		log.Printf("%s [HTTP] %s %s %d %v", icon, c.Request.Method, path, status, time.Since(start))
	}
}
