package main

import (
	"Homestead/internal/api/config"
	"Homestead/internal/client/cache"
	"Homestead/internal/client/conn"
	"Homestead/internal/model"
	"Homestead/internal/pkg/audience"
	"Homestead/internal/pkg/logger"
	"Homestead/internal/pkg/util"
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// 无界面的标签页：打印接收者视图与提示，SIGHUP 触发刷新
func main() {
	if err := config.LoadConfig("client"); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg.Client

	logger.InitLogger(config.Cfg.Logstash)

	tabID := uuid.NewString()
	store, err := cache.Open(cfg.CachePath, tabID)
	if err != nil {
		log.Error("Fatal error: failed to open local cache", "path", cfg.CachePath, "err", err)
		panic(err)
	}
	defer func() { _ = store.Close() }()

	mgr := conn.NewManager(store, conn.Options{
		BaseURL:              cfg.BaseURL,
		WSURL:                cfg.WSURL,
		RecipientID:          cfg.RecipientID,
		Token:                cfg.Token,
		BackoffBase:          util.MsDuration(cfg.BackoffBaseMs, time.Second),
		BackoffCap:           util.MsDuration(cfg.BackoffCapMs, 30*time.Second),
		BootstrapMaxAttempts: cfg.BootstrapMaxAttempts,
		CachePollInterval:    util.MsDuration(cfg.CachePollMs, 500*time.Millisecond),
		OnChange:             printView,
		OnToast: func(message string) {
			log.Info("toast", "tab_id", tabID, "message", message)
		},
		OnStatus: func(state conn.State) {
			log.Info("connection status", "tab_id", tabID, "state", state)
		},
	})

	log.Info("Tab starting...", "tab_id", tabID, "recipient_id", cfg.RecipientID)
	mgr.Start(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for s := range sig {
		if s == syscall.SIGHUP {
			log.Info("Refresh requested", "tab_id", tabID)
			mgr.Refresh()
			continue
		}
		log.Info("Received signal, closing tab...", "signal", s)
		break
	}

	mgr.Close()
	log.Info("Tab closed.", "tab_id", tabID)
}

func printView(view []*model.Notification) {
	titles := make([]string, 0, len(view))
	for _, n := range view {
		titles = append(titles, n.Title)
	}
	log.Info("notifications", "total", len(view), "unread", audience.UnreadCount(view), "titles", titles)
}
