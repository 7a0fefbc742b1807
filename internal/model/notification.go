package model

import (
	"time"
)

// AudienceType 通知受众类型
type AudienceType string

const (
	AudienceCommon   AudienceType = "common"   // 所有租户可见
	AudiencePersonal AudienceType = "personal" // 仅 RecipientIDs 中的租户可见
)

// Notification 通知模型，Mongo 文档与推送载荷共用
type Notification struct {
	ID           string       `bson:"_id,omitempty" json:"id"`
	AudienceType AudienceType `bson:"audience_type" json:"audienceType"`
	RecipientIDs []string     `bson:"recipient_ids,omitempty" json:"recipientIds"`
	RecipientID  string       `bson:"recipient_id,omitempty" json:"recipientId,omitempty"` // 旧版单接收者字段
	Title        string       `bson:"title" json:"title"`
	Message      string       `bson:"message" json:"message"`
	Category     string       `bson:"category" json:"category"`
	Priority     string       `bson:"priority" json:"priority"`
	Read         bool         `bson:"read" json:"read"` // 全局共享的已读标记，不区分接收者
	Author       string       `bson:"author" json:"author"`
	CreatedAt    time.Time    `bson:"created_at" json:"createdAt"`
}

// NotificationPatch 部分更新，nil 字段保持不变
type NotificationPatch struct {
	Read     *bool
	Title    *string
	Message  *string
	Category *string
	Priority *string
}

// IsEmpty 是否没有任何待更新字段
func (p *NotificationPatch) IsEmpty() bool {
	return p == nil || (p.Read == nil && p.Title == nil && p.Message == nil && p.Category == nil && p.Priority == nil)
}

// CloneSnapshot 复制快照切片，调用方可安全持有
func CloneSnapshot(list []*Notification) []*Notification {
	out := make([]*Notification, 0, len(list))
	for _, n := range list {
		if n == nil {
			continue
		}
		c := *n
		if n.RecipientIDs != nil {
			c.RecipientIDs = append([]string(nil), n.RecipientIDs...)
		}
		out = append(out, &c)
	}
	return out
}
