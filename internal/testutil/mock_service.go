package testutil

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/pkg/ws"
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockNotificationService testify 版 NotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) List(ctx context.Context, recipientID string) ([]*model.Notification, error) {
	args := m.Called(ctx, recipientID)
	list, _ := args.Get(0).([]*model.Notification)
	return list, args.Error(1)
}

func (m *MockNotificationService) Unread(ctx context.Context, recipientID string) (*dto.NotificationUnreadDTO, error) {
	args := m.Called(ctx, recipientID)
	out, _ := args.Get(0).(*dto.NotificationUnreadDTO)
	return out, args.Error(1)
}

func (m *MockNotificationService) Create(ctx context.Context, req *dto.CreateNotificationReq, author string) (*dto.CreateNotificationResp, error) {
	args := m.Called(ctx, req, author)
	out, _ := args.Get(0).(*dto.CreateNotificationResp)
	return out, args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, id string, req *dto.UpdateNotificationReq) (*dto.UpdateNotificationResp, error) {
	args := m.Called(ctx, id, req)
	out, _ := args.Get(0).(*dto.UpdateNotificationResp)
	return out, args.Error(1)
}

func (m *MockNotificationService) Delete(ctx context.Context, id string) (*dto.DeleteNotificationResp, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*dto.DeleteNotificationResp)
	return out, args.Error(1)
}

func (m *MockNotificationService) Resync(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) PurgeRead(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *MockNotificationService) OnConnectionOpen(ctx context.Context, c ws.Conn) {
	m.Called(ctx, c)
}

func (m *MockNotificationService) OnClientRequest(ctx context.Context, c ws.Conn, data []byte) {
	m.Called(ctx, c, data)
}
