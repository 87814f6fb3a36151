package middleware

import (
	"time"

	"RentChat/logger"

	"github.com/gin-gonic/gin"
)

// RequestLog 访问日志。WebSocket 升级请求在连接断开时才落一条，
// 属正常现象。
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("[http] %s %s status=%d cost=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
