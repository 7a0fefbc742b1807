package dto

import "Homestead/internal/model"

// Response 统一返回结构，HTTP 状态码恒为 200，业务状态看 Code
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// SnapshotResponse GET /notifications 的返回，供客户端解析
type SnapshotResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Data    []*model.Notification `json:"data"`
}
