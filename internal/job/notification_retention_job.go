package job

import (
	"Homestead/internal/pkg/logger"
	"Homestead/internal/service"
	"context"
	log "log/slog"
	"time"
)

// NotificationRetentionJob 清理超过保留期的已读通知
type NotificationRetentionJob struct {
	notificationSvc service.NotificationService
	retention       time.Duration
	now             func() time.Time
}

func NewNotificationRetentionJob(s service.NotificationService, retentionDays int) *NotificationRetentionJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &NotificationRetentionJob{
		notificationSvc: s,
		retention:       time.Duration(retentionDays) * 24 * time.Hour,
		now:             time.Now,
	}
}

func (s *NotificationRetentionJob) Run() {
	ctx, cancel := context.WithTimeout(logger.NewTraceContext(context.Background(), "job"), jobTimeout)
	defer cancel()

	before := s.now().Add(-s.retention)
	n, err := s.notificationSvc.PurgeRead(ctx, before)
	if err != nil {
		log.ErrorContext(ctx, "purge read notifications failed", "err", err)
		return
	}
	log.InfoContext(ctx, "purge read notifications success", "deleted", n, "before", before.Format(time.DateOnly))
}
