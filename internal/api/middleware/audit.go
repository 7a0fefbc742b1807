package middleware

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxAuditBody = 16384

// 查询参数中需要脱敏的字段 (推送连接允许通过 ?token= 传递凭证)
var sensitiveQueryKeys = []string{"token", "access_token"}

// auditWriter 旁路记录响应体，快照列表可能很大，只保留前 maxAuditBody 字节
type auditWriter struct {
	gin.ResponseWriter
	body      bytes.Buffer
	truncated bool
}

func (w *auditWriter) Write(b []byte) (int, error) {
	if room := maxAuditBody - w.body.Len(); room > 0 {
		if len(b) > room {
			w.body.Write(b[:room])
			w.truncated = true
		} else {
			w.body.Write(b)
		}
	} else if len(b) > 0 {
		w.truncated = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *auditWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// AuditMiddleware 记录请求与响应体；WebSocket 升级请求只记录建立与结束
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		startTime := time.Now()
		query := redactQuery(c.Request.URL.Query())

		if websocket.IsWebSocketUpgrade(c.Request) {
			log.InfoContext(ctx, "Recv WS Upgrade", "path", c.Request.URL.Path, "query", query)
			c.Next()
			log.InfoContext(ctx, "WS Session Ended", "duration", time.Since(startTime))
			return
		}

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		log.InfoContext(ctx, "Recv Request",
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.String("query", query),
			log.String("req_body", string(reqBody)),
		)

		w := &auditWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		log.InfoContext(ctx, "Send Response",
			log.Int("status", c.Writer.Status()),
			log.Duration("latency", time.Since(startTime)),
			log.String("res_body", w.body.String()),
			log.Bool("res_truncated", w.truncated),
		)
	}
}

func redactQuery(values url.Values) string {
	for _, key := range sensitiveQueryKeys {
		if values.Has(key) {
			values.Set(key, "[PROTECTED]")
		}
	}
	decoded, err := url.QueryUnescape(values.Encode())
	if err != nil {
		return values.Encode()
	}
	return decoded
}
