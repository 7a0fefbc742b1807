package kafka

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/pkg/logger"
	"Homestead/internal/service"
	"context"
	log "log/slog"
	"strings"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// NotificationCommandHandler 消费上游系统 (账单 / 滞纳金) 投递的通知指令
type NotificationCommandHandler struct {
	notificationService service.NotificationService
}

func NewNotificationCommandHandler(s service.NotificationService) *NotificationCommandHandler {
	return &NotificationCommandHandler{notificationService: s}
}

func (s *NotificationCommandHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("notification command consumer setup")
	return nil
}

func (s *NotificationCommandHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("notification command consumer cleanup")
	return nil
}

func (s *NotificationCommandHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	return pullMessageBatch(session, claim, s.handle)
}

// handle 无法解析或参数非法的指令直接跳过，其余错误返回以触发重试
func (s *NotificationCommandHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = logger.NewTraceContext(ctx, "kafka")

	var cmd dto.NotificationCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		log.WarnContext(ctx, "skip malformed notification command", "offset", msg.Offset, "err", err)
		return nil
	}

	var err error
	switch cmd.Op {
	case dto.CommandCreate:
		if cmd.Notification == nil {
			err = service.ErrParamInvalid
			break
		}
		_, err = s.notificationService.Create(ctx, cmd.Notification, commandAuthor(msg.Key))
	case dto.CommandDelete:
		_, err = s.notificationService.Delete(ctx, cmd.ID)
	case dto.CommandMarkRead:
		patch := cmd.Patch
		if patch == nil {
			read := true
			patch = &dto.UpdateNotificationReq{Read: &read}
		}
		_, err = s.notificationService.MarkRead(ctx, cmd.ID, patch)
	default:
		log.WarnContext(ctx, "skip unknown notification command", "op", cmd.Op, "offset", msg.Offset)
		return nil
	}

	if err == nil {
		return nil
	}
	if isPermanent(err) {
		log.WarnContext(ctx, "skip rejected notification command", "op", cmd.Op, "id", cmd.ID, "err", err)
		return nil
	}
	return errors.Wrapf(err, "apply %s command at offset %d", cmd.Op, msg.Offset)
}

func isPermanent(err error) bool {
	for target, code := range service.ErrorMap {
		if code != service.InternalServerError && errors.Is(err, target) {
			return true
		}
	}
	return false
}

// commandAuthor 消息 key 作为作者标识，缺省为 kafka
func commandAuthor(key []byte) string {
	if k := strings.TrimSpace(string(key)); k != "" {
		return k
	}
	return "kafka"
}
