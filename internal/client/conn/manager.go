package conn

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/client/cache"
	"Homestead/internal/model"
	"Homestead/internal/pkg/audience"
	"Homestead/internal/pkg/ws"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

const (
	defaultBackoffBase   = time.Second
	defaultBackoffCap    = 30 * time.Second
	defaultCachePoll     = 500 * time.Millisecond
	bootstrapTimeout     = 10 * time.Second
	handshakeTimeout     = 10 * time.Second
	successCode          = 200
	toastNewPrefix       = "新通知: "
	toastDeletedPrefix   = "通知已删除: "
	toastDeletedFallback = "通知已删除"
)

// SnapshotStore 本地快照缓存，多个标签页共享
type SnapshotStore interface {
	Save(ctx context.Context, snapshot []*model.Notification) (int64, error)
	Load(ctx context.Context) (*cache.Entry, error)
	Watch(ctx context.Context, since int64, interval time.Duration, fn func(*cache.Entry)) error
}

type Options struct {
	BaseURL     string // REST 前缀，如 http://host/api
	WSURL       string
	RecipientID string // 视图过滤用，空或 all 表示完整快照
	Token       string

	BackoffBase          time.Duration
	BackoffCap           time.Duration
	BootstrapMaxAttempts int
	CachePollInterval    time.Duration

	// 回调在管理器的 goroutine 中执行，不要阻塞
	OnChange func(view []*model.Notification)
	OnToast  func(message string)
	OnStatus func(state State)
}

// Manager 一个标签页持有的一条逻辑连接
// 推送、REST 引导和跨标签页缓存变更都汇入 adopt，最后到达者生效
type Manager struct {
	opts   Options
	store  SnapshotStore
	http   *resty.Client
	dialer *websocket.Dialer

	mu                sync.Mutex
	state             State
	conn              *websocket.Conn
	snapshot          []*model.Notification
	everConnected     bool
	bootstrapFailures int

	adoptMu sync.Mutex
	writeMu sync.Mutex

	refreshCh chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

func NewManager(store SnapshotStore, opts Options) *Manager {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	if opts.BackoffCap < opts.BackoffBase {
		opts.BackoffCap = opts.BackoffBase
	}
	if opts.BootstrapMaxAttempts < 0 {
		opts.BootstrapMaxAttempts = 0
	}
	if opts.CachePollInterval <= 0 {
		opts.CachePollInterval = defaultCachePoll
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(bootstrapTimeout)
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Manager{
		opts:      opts,
		store:     store,
		http:      client,
		dialer:    &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: handshakeTimeout},
		state:     StateDisconnected,
		snapshot:  make([]*model.Notification, 0),
		refreshCh: make(chan struct{}, 1),
	}
}

// Start 同步加载本地缓存，随后在后台引导并建立推送连接
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		var since int64
		entry, err := m.store.Load(ctx)
		if err != nil {
			log.WarnContext(ctx, "load local cache failed", "err", err)
		} else if entry != nil {
			since = entry.Version
			m.adopt(ctx, entry.Snapshot, false)
		}

		ctx, m.cancel = context.WithCancel(ctx)
		m.wg.Add(2)
		go func() {
			defer m.wg.Done()
			_ = m.store.Watch(ctx, since, m.opts.CachePollInterval, func(e *cache.Entry) {
				log.DebugContext(ctx, "snapshot changed by sibling tab", "version", e.Version, "writer", e.Writer)
				m.adopt(ctx, e.Snapshot, false)
			})
		}()
		go m.run(ctx)
	})
}

// Refresh 用户主动刷新：离线时重新引导并恢复连接，断开时立即重连，已连接时请求快照
func (m *Manager) Refresh() {
	m.mu.Lock()
	m.bootstrapFailures = 0
	c := m.conn
	state := m.state
	m.mu.Unlock()

	if state == StateConnected && c != nil {
		if err := m.requestSnapshot(c); err != nil {
			log.Warn("request snapshot failed", "err", err)
		}
		return
	}
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
}

// Close 以正常关闭码断开并停止所有后台任务 (含待触发的重连)
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.setState(StateClosing)

		m.mu.Lock()
		c := m.conn
		m.mu.Unlock()
		if c != nil {
			m.writeMu.Lock()
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(ws.WriteWait))
			m.writeMu.Unlock()
		}

		if m.cancel != nil {
			m.cancel()
		}
		if c != nil {
			_ = c.Close()
		}
		m.wg.Wait()

		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		if m.opts.OnStatus != nil {
			m.opts.OnStatus(StateDisconnected)
		}
	})
}

// State 当前连接状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot 当前完整快照的副本
func (m *Manager) Snapshot() []*model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneSnapshot(m.snapshot)
}

// View 当前接收者可见的通知
func (m *Manager) View() []*model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return audience.Filter(model.CloneSnapshot(m.snapshot), m.opts.RecipientID)
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	m.bootstrap(ctx)
	attempt := 0
	for ctx.Err() == nil {
		if m.State() == StateOffline {
			if !m.waitRefresh(ctx) {
				return
			}
			m.setState(StateDisconnected)
			m.bootstrap(ctx)
			attempt = 0
			continue
		}

		c, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setState(StateDisconnected)
			if m.countBootstrapFailure() {
				log.WarnContext(ctx, "initial connection failed too many times, going offline", "err", err)
				m.setState(StateOffline)
				continue
			}
			attempt++
			log.InfoContext(ctx, "connect failed, retry scheduled", "attempt", attempt, "err", err)
			if !m.wait(ctx, reconnectDelay(m.opts.BackoffBase, m.opts.BackoffCap, attempt)) {
				return
			}
			continue
		}

		attempt = 0
		code := m.serve(ctx, c)
		if ctx.Err() != nil {
			return
		}
		m.setState(StateDisconnected)

		if code == websocket.CloseNormalClosure {
			// 服务端正常关闭，不自动重连
			log.InfoContext(ctx, "connection closed normally, waiting for refresh")
			if !m.waitRefresh(ctx) {
				return
			}
			continue
		}

		attempt++
		delay := reconnectDelay(m.opts.BackoffBase, m.opts.BackoffCap, attempt)
		log.InfoContext(ctx, "connection lost, reconnecting", "code", code, "delay", delay)
		if !m.wait(ctx, delay) {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.setState(StateConnecting)

	target, err := url.Parse(m.opts.WSURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	if m.opts.RecipientID != "" {
		q := target.Query()
		q.Set("recipientId", m.opts.RecipientID)
		target.RawQuery = q.Encode()
	}
	header := http.Header{}
	if m.opts.Token != "" {
		header.Set("Authorization", "Bearer "+m.opts.Token)
	}

	c, resp, err := m.dialer.DialContext(ctx, target.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		_ = c.Close()
		return nil, context.Canceled
	}
	m.conn = c
	m.everConnected = true
	m.bootstrapFailures = 0
	m.mu.Unlock()
	m.setState(StateConnected)
	return c, nil
}

// serve 请求快照并读取推送，直到连接结束，返回关闭码
func (m *Manager) serve(ctx context.Context, c *websocket.Conn) int {
	defer func() {
		m.mu.Lock()
		if m.conn == c {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = c.Close()
	}()

	_ = c.SetReadDeadline(time.Now().Add(ws.PongWait))
	c.SetPingHandler(func(data string) error {
		_ = c.SetReadDeadline(time.Now().Add(ws.PongWait))
		err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(ws.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	if err := m.requestSnapshot(c); err != nil {
		log.WarnContext(ctx, "request snapshot failed", "err", err)
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return closeErr.Code
			}
			if ctx.Err() == nil {
				log.InfoContext(ctx, "read failed", "err", err)
			}
			return websocket.CloseAbnormalClosure
		}
		_ = c.SetReadDeadline(time.Now().Add(ws.PongWait))

		env, err := ws.DecodeEnvelope(data)
		if err != nil {
			log.WarnContext(ctx, "ignore malformed envelope", "err", err)
			continue
		}
		m.handle(ctx, env)
	}
}

func (m *Manager) handle(ctx context.Context, env *ws.Envelope) {
	if !ws.CarriesSnapshot(env.Type) {
		log.DebugContext(ctx, "ignore unknown envelope", "type", env.Type)
		return
	}
	m.adopt(ctx, env.Snapshot, true)

	if m.opts.OnToast == nil {
		return
	}
	if msg := m.toastFor(env); msg != "" {
		m.opts.OnToast(msg)
	}
}

// toastFor 只使用提示字段生成文案，不影响列表本身
func (m *Manager) toastFor(env *ws.Envelope) string {
	switch env.Type {
	case ws.TypeNew:
		if audience.IsAll(m.opts.RecipientID) || audience.Visible(env.Notification, m.opts.RecipientID) {
			if env.Notification != nil {
				return toastNewPrefix + env.Notification.Title
			}
		}
	case ws.TypeDeleted:
		if env.DeletedRecord == nil {
			return toastDeletedFallback
		}
		if audience.IsAll(m.opts.RecipientID) || audience.Visible(env.DeletedRecord, m.opts.RecipientID) {
			return toastDeletedPrefix + env.DeletedRecord.Title
		}
	}
	return ""
}

// adopt 用新快照整体替换当前列表；persist 为 true 时写入本地缓存通知其它标签页
func (m *Manager) adopt(ctx context.Context, snapshot []*model.Notification, persist bool) {
	if snapshot == nil {
		snapshot = make([]*model.Notification, 0)
	}

	m.adoptMu.Lock()
	defer m.adoptMu.Unlock()

	m.mu.Lock()
	m.snapshot = snapshot
	m.mu.Unlock()

	if persist {
		if _, err := m.store.Save(ctx, snapshot); err != nil && ctx.Err() == nil {
			log.WarnContext(ctx, "persist snapshot failed", "err", err)
		}
	}
	if m.opts.OnChange != nil {
		m.opts.OnChange(audience.Filter(model.CloneSnapshot(snapshot), m.opts.RecipientID))
	}
}

// bootstrap 一次性 REST 拉取完整快照
func (m *Manager) bootstrap(ctx context.Context) {
	if m.opts.BaseURL == "" {
		return
	}
	var body dto.SnapshotResponse
	resp, err := m.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/notifications")
	if err != nil {
		if ctx.Err() == nil {
			log.WarnContext(ctx, "bootstrap fetch failed", "err", err)
		}
		return
	}
	if resp.IsError() || body.Code != successCode {
		log.WarnContext(ctx, "bootstrap fetch rejected", "status", resp.StatusCode(), "code", body.Code, "message", body.Message)
		return
	}
	m.adopt(ctx, body.Data, true)
}

func (m *Manager) requestSnapshot(c *websocket.Conn) error {
	data, err := ws.EncodeControl(ws.TypeGetSnapshot)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(ws.WriteWait))
	return c.WriteMessage(websocket.TextMessage, data)
}

// countBootstrapFailure 只统计从未连上过时的失败，超过上限返回 true
func (m *Manager) countBootstrapFailure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.everConnected {
		return false
	}
	m.bootstrapFailures++
	return m.bootstrapFailures > m.opts.BootstrapMaxAttempts
}

// wait 等待重连延迟，Refresh 会提前结束等待；ctx 结束返回 false
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-m.refreshCh:
		return true
	case <-timer.C:
		return true
	}
}

func (m *Manager) waitRefresh(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.refreshCh:
		return true
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	// 进入 closing 后只有 Close 自己能改状态
	if m.state == s || m.state == StateClosing {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	if m.opts.OnStatus != nil {
		m.opts.OnStatus(s)
	}
}
