package ws

import (
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// 心跳：服务端定期 ping，超过 PongWait 未收到 pong 视为断线
const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	MaxMessageSize = 512
)

var (
	ErrClientClosed   = errors.New("ws client closed")
	ErrSendBufferFull = errors.New("ws send buffer full")
)

// ClientOptions 单条连接的参数
type ClientOptions struct {
	RecipientID  string        // 可选，仅用于日志，不参与过滤
	SendBuffer   int           // 出站队列长度，写满视为慢客户端
	WriteTimeout time.Duration // 单次写超时
	SnapshotRate rate.Limit    // GET_SNAPSHOT 限速（次/秒）
	PongWait     time.Duration // 心跳超时，ping 间隔取其 9/10
}

// Client 服务端持有的一条 WebSocket 连接
// 出站消息先进入有界队列，由 WritePump 独占写入，广播方永远不会被慢客户端阻塞
type Client struct {
	id          string
	recipientID string
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	closeCode   int
	writeWait   time.Duration
	pongWait    time.Duration
	limiter     *rate.Limiter
}

func NewClient(conn *websocket.Conn, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 16
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = WriteWait
	}
	if opts.SnapshotRate <= 0 {
		opts.SnapshotRate = 1
	}
	if opts.PongWait <= 0 {
		opts.PongWait = PongWait
	}
	return &Client{
		id:          uuid.NewString(),
		recipientID: opts.RecipientID,
		conn:        conn,
		send:        make(chan []byte, opts.SendBuffer),
		done:        make(chan struct{}),
		closeCode:   websocket.CloseNormalClosure,
		writeWait:   opts.WriteTimeout,
		pongWait:    opts.PongWait,
		limiter:     rate.NewLimiter(opts.SnapshotRate, 3),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) RecipientID() string { return c.recipientID }

// Send 投递到出站队列，不阻塞
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close 通知写循环发送关闭帧并断开
func (c *Client) Close(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// AllowSnapshotRequest 对客户端的 GET_SNAPSHOT 请求限速
func (c *Client) AllowSnapshotRequest() bool {
	return c.limiter.Allow()
}

// WritePump 独占写循环：出站消息 + 心跳 + 关闭帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn("WS write failed", "conn_id", c.id, "err", err)
				c.Close(websocket.CloseAbnormalClosure)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, ""),
				time.Now().Add(c.writeWait),
			)
			return
		}
	}
}

// ReadPump 读循环，阻塞直到连接断开；每条客户端消息交给 onMessage
func (c *Client) ReadPump(onMessage func([]byte)) error {
	c.conn.SetReadLimit(MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		onMessage(data)
	}
}
