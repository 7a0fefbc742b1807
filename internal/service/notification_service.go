package service

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/pkg/audience"
	"Homestead/internal/pkg/mongo"
	"Homestead/internal/pkg/util"
	"Homestead/internal/pkg/ws"
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

const systemAuthor = "system"

// Broadcaster 连接注册表的投递能力
type Broadcaster interface {
	Broadcast(env *ws.Envelope) int
	Send(c ws.Conn, env *ws.Envelope) error
}

// SnapshotCache 完整快照的读缓存，只在持有服务锁时写入
type SnapshotCache interface {
	Get(ctx context.Context) ([]*model.Notification, bool)
	Set(ctx context.Context, list []*model.Notification) error
	Invalidate(ctx context.Context)
}

type NotificationOptions struct {
	// GraceDelay 连接建立后延迟多久推送 INITIAL_SNAPSHOT
	GraceDelay time.Duration
}

type NotificationService interface {
	List(ctx context.Context, recipientID string) ([]*model.Notification, error)
	Unread(ctx context.Context, recipientID string) (*dto.NotificationUnreadDTO, error)
	Create(ctx context.Context, req *dto.CreateNotificationReq, author string) (*dto.CreateNotificationResp, error)
	MarkRead(ctx context.Context, id string, req *dto.UpdateNotificationReq) (*dto.UpdateNotificationResp, error)
	Delete(ctx context.Context, id string) (*dto.DeleteNotificationResp, error)
	Resync(ctx context.Context) (int, error)
	PurgeRead(ctx context.Context, before time.Time) (int64, error)
	OnConnectionOpen(ctx context.Context, c ws.Conn)
	OnClientRequest(ctx context.Context, c ws.Conn, data []byte)
}

// notificationServiceImpl 每次变更后重读完整快照并广播
// mu 串行化 "变更 -> 重读 -> 广播" 以及单连接快照推送，保证各连接收到的快照顺序与存储一致
type notificationServiceImpl struct {
	mu          sync.Mutex
	repo        mongo.NotificationRepo
	broadcaster Broadcaster
	cache       SnapshotCache
	graceDelay  time.Duration
}

func NewNotificationService(repo mongo.NotificationRepo, b Broadcaster, cache SnapshotCache, opts NotificationOptions) NotificationService {
	if cache == nil {
		cache = noopCache{}
	}
	return &notificationServiceImpl{
		repo:        repo,
		broadcaster: b,
		cache:       cache,
		graceDelay:  opts.GraceDelay,
	}
}

// List 返回接收者视图，recipientID 为空或 all 时返回完整快照
func (s *notificationServiceImpl) List(ctx context.Context, recipientID string) ([]*model.Notification, error) {
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return audience.Filter(snapshot, strings.TrimSpace(recipientID)), nil
}

// Unread 接收者视图的总数与未读数
func (s *notificationServiceImpl) Unread(ctx context.Context, recipientID string) (*dto.NotificationUnreadDTO, error) {
	view, err := s.List(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	return &dto.NotificationUnreadDTO{
		RecipientID: recipientID,
		Total:       len(view),
		UnreadCount: audience.UnreadCount(view),
	}, nil
}

// Create 持久化后广播 NEW
func (s *notificationServiceImpl) Create(ctx context.Context, req *dto.CreateNotificationReq, author string) (*dto.CreateNotificationResp, error) {
	if req == nil {
		return nil, ErrParamInvalid
	}
	if err := util.ValidateDTO(req); err != nil {
		log.WarnContext(ctx, "create notification rejected", "err", err)
		return nil, ErrParamInvalid
	}

	n := &model.Notification{}
	if err := copier.Copy(n, req); err != nil {
		return nil, err
	}
	n.RecipientID = ""
	n.RecipientIDs = nil
	if req.AudienceType == model.AudiencePersonal {
		n.RecipientIDs = audience.Recipients(req.RecipientIDs, req.RecipientID)
		if len(n.RecipientIDs) == 0 {
			return nil, ErrRecipientMissing
		}
	}
	n.Author = firstNonEmpty(req.Author, author, systemAuthor)
	n.Read = false
	n.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	delivered := s.broadcastLocked(ctx, &ws.Envelope{Type: ws.TypeNew, Notification: n})
	log.InfoContext(ctx, "notification created", "id", n.ID, "audience", n.AudienceType, "delivered", delivered)

	return &dto.CreateNotificationResp{Notification: n, Delivered: delivered}, nil
}

// MarkRead 部分更新 (通常为已读标记)，广播 UPDATED
func (s *notificationServiceImpl) MarkRead(ctx context.Context, id string, req *dto.UpdateNotificationReq) (*dto.UpdateNotificationResp, error) {
	id = strings.TrimSpace(id)
	if id == "" || req == nil {
		return nil, ErrParamInvalid
	}
	if err := util.ValidateDTO(req); err != nil {
		return nil, ErrParamInvalid
	}

	patch := &model.NotificationPatch{}
	if err := copier.Copy(patch, req); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, ErrParamInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, mongoDB.ErrNoDocuments) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	delivered := s.broadcastLocked(ctx, &ws.Envelope{Type: ws.TypeUpdated})
	return &dto.UpdateNotificationResp{Notification: updated, Delivered: delivered}, nil
}

// Delete 删除后广播 DELETED，id 不存在不算错误，仍会广播且 deletedRecord 为 null
func (s *notificationServiceImpl) Delete(ctx context.Context, id string) (*dto.DeleteNotificationResp, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrParamInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	delivered := s.broadcastLocked(ctx, &ws.Envelope{
		Type:          ws.TypeDeleted,
		DeletedID:     id,
		DeletedRecord: record,
	})
	log.InfoContext(ctx, "notification deleted", "id", id, "existed", record != nil, "delivered", delivered)

	return &dto.DeleteNotificationResp{DeletedID: id, DeletedRecord: record, Delivered: delivered}, nil
}

// Resync 绕过缓存重读存储并向所有连接推送 INITIAL_SNAPSHOT
func (s *notificationServiceImpl) Resync(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.reloadLocked(ctx)
	if err != nil {
		return 0, err
	}
	return s.broadcaster.Broadcast(&ws.Envelope{Type: ws.TypeInitialSnapshot, Snapshot: list}), nil
}

// PurgeRead 清理过期的已读通知，有删除时广播 UPDATED
func (s *notificationServiceImpl) PurgeRead(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.repo.DeleteReadBefore(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.broadcastLocked(ctx, &ws.Envelope{Type: ws.TypeUpdated})
	}
	return n, nil
}

// OnConnectionOpen 新连接在宽限期后收到 INITIAL_SNAPSHOT
func (s *notificationServiceImpl) OnConnectionOpen(ctx context.Context, c ws.Conn) {
	if s.graceDelay <= 0 {
		s.sendSnapshot(ctx, c)
		return
	}
	time.AfterFunc(s.graceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		s.sendSnapshot(ctx, c)
	})
}

// OnClientRequest 处理客户端控制消息，目前只有 GET_SNAPSHOT
func (s *notificationServiceImpl) OnClientRequest(ctx context.Context, c ws.Conn, data []byte) {
	msg, err := ws.DecodeControl(data)
	if err != nil {
		log.WarnContext(ctx, "ignore malformed client message", "conn_id", c.ID(), "err", err)
		return
	}
	switch msg.Type {
	case ws.TypeGetSnapshot:
		s.sendSnapshot(ctx, c)
	default:
		log.DebugContext(ctx, "ignore unknown client message", "conn_id", c.ID(), "type", msg.Type)
	}
}

func (s *notificationServiceImpl) sendSnapshot(ctx context.Context, c ws.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.cache.Get(ctx)
	if !ok {
		var err error
		if list, err = s.reloadLocked(ctx); err != nil {
			log.ErrorContext(ctx, "load snapshot failed", "conn_id", c.ID(), "err", err)
			return
		}
	}
	if err := s.broadcaster.Send(c, &ws.Envelope{Type: ws.TypeInitialSnapshot, Snapshot: list}); err != nil {
		log.WarnContext(ctx, "send initial snapshot failed", "conn_id", c.ID(), "err", err)
	}
}

// snapshot 读路径：优先缓存，未命中时在锁内重读
func (s *notificationServiceImpl) snapshot(ctx context.Context) ([]*model.Notification, error) {
	if list, ok := s.cache.Get(ctx); ok {
		return list, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *notificationServiceImpl) reloadLocked(ctx context.Context) ([]*model.Notification, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		s.cache.Invalidate(ctx)
		return nil, err
	}
	if err = s.cache.Set(ctx, list); err != nil {
		// 旧快照不能在 TTL 内继续被当作 INITIAL_SNAPSHOT 或引导数据返回
		log.WarnContext(ctx, "snapshot cache write failed, invalidating", "err", err)
		s.cache.Invalidate(ctx)
	}
	return list, nil
}

// broadcastLocked 重读快照并广播；重读失败时变更已生效，跳过本次广播，由定时重同步兜底
func (s *notificationServiceImpl) broadcastLocked(ctx context.Context, env *ws.Envelope) int {
	list, err := s.reloadLocked(ctx)
	if err != nil {
		log.ErrorContext(ctx, "reload snapshot after mutation failed, broadcast skipped", "type", env.Type, "err", err)
		return 0
	}
	env.Snapshot = list
	return s.broadcaster.Broadcast(env)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type noopCache struct{}

func (noopCache) Get(context.Context) ([]*model.Notification, bool) { return nil, false }

func (noopCache) Set(context.Context, []*model.Notification) error { return nil }

func (noopCache) Invalidate(context.Context) {}
