package requestid

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/logger"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/observability"
)

const (
	Header = "X-Request-ID"
	CtxKey = "request_id"
)

// Middleware: 受け取った X-Request-ID を引き継ぐ。無ければ採番する
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(CtxKey, id)
		c.Header(Header, id)
		c.Next()
	}
}

func From(c *gin.Context) string { return c.GetString(CtxKey) }

// AccessLog は gin.Logger() の代わり。m は nil でもよい
func AccessLog(log *logger.Logger, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if m != nil {
			m.HTTP.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}

		kv := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", From(c),
		}
		if actor := c.GetString("actor_id"); actor != "" {
			kv = append(kv, "actor", actor)
		}
		switch {
		case status >= 500:
			log.Error("http request", kv...)
		case status >= 400:
			log.Warn("http request", kv...)
		default:
			log.Info("http request", kv...)
		}
	}
}
