package testutil

import (
	"Homestead/internal/api"
	"Homestead/internal/api/handler"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/service"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// NotificationServer 完整的通知服务 (内存存储) 运行在 httptest.Server 上
type NotificationServer struct {
	*httptest.Server
	Repo     *MemoryNotificationRepo
	Registry *ws.Registry
	Service  service.NotificationService
}

// NewNotificationServer 启动测试服务，测试结束时关闭；tweak 可覆盖连接参数
func NewNotificationServer(t *testing.T, tweak ...func(*ws.ClientOptions)) *NotificationServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := NewMemoryNotificationRepo()
	registry := ws.NewRegistry()
	svc := service.NewNotificationService(repo, registry, nil, service.NotificationOptions{GraceDelay: 10 * time.Millisecond})

	opts := ws.ClientOptions{
		SendBuffer:   64,
		WriteTimeout: time.Second,
		SnapshotRate: rate.Limit(50),
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	router := api.SetupRouter(&api.HandlersGroup{
		NotificationHandler: handler.NewNotificationHandler(svc),
		WSHandler:           handler.NewWsHandler(registry, svc, opts),
	})

	srv := httptest.NewServer(router)
	s := &NotificationServer{Server: srv, Repo: repo, Registry: registry, Service: svc}
	t.Cleanup(func() {
		registry.DisconnectAll(1001)
		srv.Close()
	})
	return s
}

// BaseURL REST 前缀
func (s *NotificationServer) BaseURL() string {
	return s.URL + "/api"
}

// WSURL 推送连接地址
func (s *NotificationServer) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/api/notifications/ws"
}
