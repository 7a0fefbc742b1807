package ws

import (
	log "log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Conn 注册表管理的一条实时连接
type Conn interface {
	ID() string
	// Send 非阻塞投递，失败即视为连接已死
	Send(data []byte) error
	// Close 以指定关闭码断开连接，可重复调用
	Close(code int)
}

// Stats 注册表诊断计数
type Stats struct {
	Connections int   `json:"connections"`
	Broadcasts  int64 `json:"broadcasts"`
	Delivered   int64 `json:"delivered"`
	Evicted     int64 `json:"evicted"`
}

// Registry 当前打开的连接集合，单把锁保护成员关系
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn

	broadcasts atomic.Int64
	delivered  atomic.Int64
	evicted    atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
	}
}

// Register 连接建立时加入
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	log.Info("WS connection registered", "conn_id", c.ID(), "connections", len(r.conns))
}

// Unregister 连接关闭、出错或发送失败时移除，返回是否确实移除
func (r *Registry) Unregister(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(c)
}

func (r *Registry) removeLocked(c Conn) bool {
	if cur, ok := r.conns[c.ID()]; !ok || cur != c {
		return false
	}
	delete(r.conns, c.ID())
	log.Info("WS connection unregistered", "conn_id", c.ID(), "connections", len(r.conns))
	return true
}

// Broadcast 向所有连接投递，发送失败的连接立即剔除，其余连接不受影响
// 返回成功投递的连接数
func (r *Registry) Broadcast(env *Envelope) int {
	data, err := env.Encode()
	if err != nil {
		log.Error("WS envelope encode failed", "type", env.Type, "err", err)
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcasts.Add(1)
	sent := 0
	for _, c := range r.conns {
		if err := c.Send(data); err != nil {
			log.Warn("WS send failed, evicting connection", "conn_id", c.ID(), "err", err)
			r.removeLocked(c)
			r.evicted.Add(1)
			c.Close(websocket.CloseGoingAway)
			continue
		}
		sent++
	}
	r.delivered.Add(int64(sent))
	return sent
}

// Send 向单个连接投递（初始快照 / 主动重同步），失败同样剔除
func (r *Registry) Send(c Conn, env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = c.Send(data); err != nil {
		if r.removeLocked(c) {
			r.evicted.Add(1)
		}
		c.Close(websocket.CloseGoingAway)
		return err
	}
	r.delivered.Add(1)
	return nil
}

// DisconnectAll 以指定关闭码断开所有连接，注册表本身仍可继续使用
func (r *Registry) DisconnectAll(code int) int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(code)
	}
	log.Info("WS connections closed", "count", len(conns), "code", code)
	return len(conns)
}

// Count 当前连接数
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Stats 诊断信息，仅用于观测
func (r *Registry) Stats() Stats {
	return Stats{
		Connections: r.Count(),
		Broadcasts:  r.broadcasts.Load(),
		Delivered:   r.delivered.Load(),
		Evicted:     r.evicted.Load(),
	}
}
