package dto

import "Homestead/internal/model"

// CreateNotificationReq 创建通知
// personal 通知的接收者取 recipientIds 与 recipientId 的并集，并集不能为空
type CreateNotificationReq struct {
	AudienceType model.AudienceType `json:"audienceType" validate:"required,oneof=common personal"`
	RecipientIDs []string           `json:"recipientIds" validate:"omitempty,max=500,dive,max=64"`
	RecipientID  string             `json:"recipientId" validate:"max=64"`
	Title        string             `json:"title" validate:"required,max=200"`
	Message      string             `json:"message" validate:"max=4000"`
	Category     string             `json:"category" validate:"max=64"`
	Priority     string             `json:"priority" validate:"max=32"`
	Author       string             `json:"author" validate:"max=64"`
}

// UpdateNotificationReq 部分更新，只处理非空字段
type UpdateNotificationReq struct {
	Read     *bool   `json:"read"`
	Title    *string `json:"title" validate:"omitempty,max=200"`
	Message  *string `json:"message" validate:"omitempty,max=4000"`
	Category *string `json:"category" validate:"omitempty,max=64"`
	Priority *string `json:"priority" validate:"omitempty,max=32"`
}

type CreateNotificationResp struct {
	Notification *model.Notification `json:"notification"`
	Delivered    int                 `json:"delivered"`
}

type UpdateNotificationResp struct {
	Notification *model.Notification `json:"notification"`
	Delivered    int                 `json:"delivered"`
}

// DeleteNotificationResp 删除结果，id 不存在时 DeletedRecord 为 null
type DeleteNotificationResp struct {
	DeletedID     string              `json:"deletedId"`
	DeletedRecord *model.Notification `json:"deletedRecord"`
	Delivered     int                 `json:"delivered"`
}

// NotificationUnreadDTO 接收者视图的计数
type NotificationUnreadDTO struct {
	RecipientID string `json:"recipientId"`
	Total       int    `json:"total"`
	UnreadCount int    `json:"unreadCount"`
}

// NotificationCommand Kafka 中上游系统投递的通知指令
type NotificationCommand struct {
	Op           string                 `json:"op"` // create | delete | markRead
	ID           string                 `json:"id"`
	Notification *CreateNotificationReq `json:"notification"`
	Patch        *UpdateNotificationReq `json:"patch"`
}

const (
	CommandCreate   = "create"
	CommandDelete   = "delete"
	CommandMarkRead = "markRead"
)
