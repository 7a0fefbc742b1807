package api

import (
	"Homestead/internal/api/middleware"
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/logger"
	"Homestead/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			response.Success(c, "pong")
		})

		notificationGroup := apiGroup.Group("/notifications")
		{
			// 读接口与推送连接对所有人开放
			notificationGroup.GET("", group.NotificationHandler.List)
			notificationGroup.GET("/unread", group.NotificationHandler.Unread)
			notificationGroup.GET("/stats", group.WSHandler.Stats)
			notificationGroup.GET("/ws", middleware.AuthOptionalMiddleware(), group.WSHandler.Connect)

			authGroup := notificationGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.PUT("/:id", group.NotificationHandler.Update)
			}

			// 需要登录 & 拥有 owner / admin 角色
			adminGroup := authGroup.Group("")
			adminGroup.Use(middleware.CheckRoles(consts.RoleOwner, consts.RoleAdmin))
			{
				adminGroup.POST("", group.NotificationHandler.Create)
				adminGroup.DELETE("/:id", group.NotificationHandler.Delete)
			}
		}
	}

	return r
}
