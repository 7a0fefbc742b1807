package conn

import "time"

// State 连接状态，供界面展示
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
	// StateOffline 首次连接多次失败后进入，只依赖本地缓存与一次性 REST 拉取，直到 Refresh
	StateOffline State = "offline"
)

// reconnectDelay 稳态重连延迟 min(base × attempt, cap)，attempt 从 1 开始且不设上限
func reconnectDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d > ceiling || d <= 0 {
		return ceiling
	}
	return d
}
