package consts

const (
	NotificationSnapshotKey = "notification:snapshot"
	TokenBlacklistKey       = "token:blacklist:"
)
