package job

import (
	"Homestead/internal/pkg/logger"
	"Homestead/internal/service"
	"context"
	log "log/slog"
	"time"
)

const jobTimeout = 30 * time.Second

// SnapshotResyncJob 定期向所有连接推送 INITIAL_SNAPSHOT
// 修复变更后重读失败被跳过的广播
type SnapshotResyncJob struct {
	notificationSvc service.NotificationService
}

func NewSnapshotResyncJob(s service.NotificationService) *SnapshotResyncJob {
	return &SnapshotResyncJob{notificationSvc: s}
}

func (s *SnapshotResyncJob) Run() {
	ctx, cancel := context.WithTimeout(logger.NewTraceContext(context.Background(), "job"), jobTimeout)
	defer cancel()

	delivered, err := s.notificationSvc.Resync(ctx)
	if err != nil {
		log.ErrorContext(ctx, "snapshot resync failed", "err", err)
		return
	}
	log.InfoContext(ctx, "snapshot resync success", "delivered", delivered)
}
