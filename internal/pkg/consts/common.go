package consts

// 角色，由上游业务系统写入 Token
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleTenant = "TENANT"
)

// Context 中的身份键
const (
	CtxUserID = "user_id"
	CtxRoles  = "roles"
)
