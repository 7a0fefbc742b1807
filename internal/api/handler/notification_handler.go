package handler

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/response"
	"Homestead/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService service.NotificationService
}

func NewNotificationHandler(s service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: s,
	}
}

// List 当前快照，带 recipientId 时返回该接收者的视图
func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.notificationService.List(c.Request.Context(), c.Query("recipientId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, list)
}

// Unread 接收者视图的未读数
func (h *NotificationHandler) Unread(c *gin.Context) {
	unread, err := h.notificationService.Unread(c.Request.Context(), c.Query("recipientId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, unread)
}

// Create 创建并广播
func (h *NotificationHandler) Create(c *gin.Context) {
	var req dto.CreateNotificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	resp, err := h.notificationService.Create(c.Request.Context(), &req, c.GetString(consts.CtxUserID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// Update 部分更新 (已读标记)
func (h *NotificationHandler) Update(c *gin.Context) {
	var req dto.UpdateNotificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	resp, err := h.notificationService.MarkRead(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// Delete 删除，id 不存在同样返回成功
func (h *NotificationHandler) Delete(c *gin.Context) {
	resp, err := h.notificationService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}
