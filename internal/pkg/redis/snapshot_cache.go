package redis

import (
	"Homestead/internal/model"
	"Homestead/internal/pkg/consts"
	"context"
	log "log/slog"
	"time"

	"github.com/goccy/go-json"
)

// SnapshotCache 完整快照的读缓存，GET /notifications 命中时不访问 Mongo
type SnapshotCache struct {
	ttl time.Duration
}

func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{ttl: ttl}
}

func (s *SnapshotCache) Get(ctx context.Context) ([]*model.Notification, bool) {
	if Rdb == nil {
		return nil, false
	}
	data, err := GetBytes(ctx, consts.NotificationSnapshotKey)
	if err != nil || data == nil {
		return nil, false
	}
	list := make([]*model.Notification, 0)
	if err = json.Unmarshal(data, &list); err != nil {
		log.WarnContext(ctx, "snapshot cache corrupted", "err", err)
		return nil, false
	}
	return list, true
}

// Set 写入失败时返回错误，调用方负责让旧快照失效
func (s *SnapshotCache) Set(ctx context.Context, list []*model.Notification) error {
	if Rdb == nil {
		return nil
	}
	if list == nil {
		list = make([]*model.Notification, 0)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return SetWithExpiration(ctx, consts.NotificationSnapshotKey, data, s.ttl)
}

func (s *SnapshotCache) Invalidate(ctx context.Context) {
	if Rdb == nil {
		return
	}
	if err := DeleteKey(ctx, consts.NotificationSnapshotKey); err != nil {
		log.WarnContext(ctx, "snapshot cache invalidate failed", "err", err)
	}
}
