package handler

import (
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/response"
	"Homestead/internal/pkg/security"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/service"
	"context"
	"errors"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	registry            *ws.Registry
	notificationService service.NotificationService
	clientOpts          ws.ClientOptions
}

func NewWsHandler(registry *ws.Registry, s service.NotificationService, opts ws.ClientOptions) *WsHandler {
	return &WsHandler{
		registry:            registry,
		notificationService: s,
		clientOpts:          opts,
	}
}

// Connect 建立推送连接
// 连接不做强制鉴权：身份 (Header / token 参数 / recipientId 参数) 只用于日志
func (h *WsHandler) Connect(c *gin.Context) {
	recipientID := c.GetString(consts.CtxUserID)
	if recipientID == "" {
		if token := c.Query("token"); token != "" {
			claims, err := security.ValidateToken(token)
			if err != nil {
				log.WarnContext(c.Request.Context(), "WS 鉴权失败", "err", err)
				response.Error(c, service.UnauthorizedError)
				return
			}
			recipientID = claims.UserID
		} else {
			recipientID = c.Query("recipientId")
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "WS 协议升级失败", "err", err)
		return
	}

	opts := h.clientOpts
	opts.RecipientID = recipientID
	client := ws.NewClient(conn, opts)
	ctx := c.Request.Context()

	h.registry.Register(client)
	go client.WritePump()
	h.notificationService.OnConnectionOpen(ctx, client)

	log.InfoContext(ctx, "WS 连接已建立", "conn_id", client.ID(), "recipient_id", recipientID)

	err = client.ReadPump(func(data []byte) {
		if !client.AllowSnapshotRequest() {
			log.WarnContext(ctx, "WS 客户端请求过于频繁，已忽略", "conn_id", client.ID())
			return
		}
		h.notificationService.OnClientRequest(ctx, client, data)
	})

	h.registry.Unregister(client)
	client.Close(closeCodeFor(ctx, client.ID(), err))
}

// closeCodeFor 只有对端主动正常关闭时回 1000，心跳超时等其他原因一律 1001，客户端据此自动重连
func closeCodeFor(ctx context.Context, connID string, err error) int {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
		log.InfoContext(ctx, "WS 连接已断开", "conn_id", connID, "code", closeErr.Code)
		if closeErr.Code == websocket.CloseNormalClosure {
			return websocket.CloseNormalClosure
		}
		return websocket.CloseGoingAway
	}
	log.WarnContext(ctx, "WS 连接异常断开", "conn_id", connID, "err", err)
	return websocket.CloseGoingAway
}

// Stats 连接与投递计数
func (h *WsHandler) Stats(c *gin.Context) {
	response.Success(c, h.registry.Stats())
}
