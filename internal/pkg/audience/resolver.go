package audience

import (
	"Homestead/internal/model"
	"slices"
	"strings"
)

// AllRecipients 房东/管理员视角，查询时返回完整快照
const AllRecipients = "all"

// Visible 判断通知对指定接收者是否可见
// personal 通知的接收者为 RecipientIDs 与旧版 RecipientID 的并集，并集为空则对所有人不可见
func Visible(n *model.Notification, recipientID string) bool {
	if n == nil {
		return false
	}
	switch n.AudienceType {
	case model.AudienceCommon:
		return true
	case model.AudiencePersonal:
		if recipientID == "" {
			return false
		}
		if n.RecipientID == recipientID {
			return true
		}
		return slices.Contains(n.RecipientIDs, recipientID)
	default:
		return false
	}
}

// Filter 从完整快照中派生接收者视图，保持原有顺序
func Filter(snapshot []*model.Notification, recipientID string) []*model.Notification {
	view := make([]*model.Notification, 0, len(snapshot))
	if IsAll(recipientID) {
		return append(view, snapshot...)
	}
	for _, n := range snapshot {
		if Visible(n, recipientID) {
			view = append(view, n)
		}
	}
	return view
}

// UnreadCount 统计视图中的未读数
func UnreadCount(view []*model.Notification) int {
	count := 0
	for _, n := range view {
		if n != nil && !n.Read {
			count++
		}
	}
	return count
}

// Recipients 返回去重后的接收者列表（新字段在前）
func Recipients(ids []string, legacy string) []string {
	out := make([]string, 0, len(ids)+1)
	for _, id := range append(append([]string(nil), ids...), legacy) {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// IsAll 空接收者或 all 代表不过滤
func IsAll(recipientID string) bool {
	return recipientID == "" || recipientID == AllRecipients
}
