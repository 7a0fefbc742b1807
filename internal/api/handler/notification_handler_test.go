package handler_test

import (
	"Homestead/internal/api"
	"Homestead/internal/api/dto"
	"Homestead/internal/api/handler"
	"Homestead/internal/model"
	"Homestead/internal/pkg/security"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/service"
	"Homestead/internal/testutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, *testutil.MockNotificationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	security.Configure("handler-test-secret", "homestead-test", time.Hour)

	svc := &testutil.MockNotificationService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })

	r := api.SetupRouter(&api.HandlersGroup{
		NotificationHandler: handler.NewNotificationHandler(svc),
		WSHandler:           handler.NewWsHandler(ws.NewRegistry(), svc, ws.ClientOptions{}),
	})
	return r, svc
}

func token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tk, err := security.GenerateToken(userID, roles)
	require.NoError(t, err)
	return "Bearer " + tk
}

func do(r *gin.Engine, method, path, body, auth string) dto.Response {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func TestList_PassesRecipient(t *testing.T) {
	r, svc := setup(t)
	svc.On("List", mock.Anything, "T1").Return([]*model.Notification{{ID: "1", Title: "Maintenance"}}, nil).Once()

	resp := do(r, http.MethodGet, "/api/notifications?recipientId=T1", "", "")

	assert.Equal(t, 200, resp.Code)
	data, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func TestUnread(t *testing.T) {
	r, svc := setup(t)
	svc.On("Unread", mock.Anything, "T2").Return(&dto.NotificationUnreadDTO{RecipientID: "T2", Total: 3, UnreadCount: 2}, nil).Once()

	resp := do(r, http.MethodGet, "/api/notifications/unread?recipientId=T2", "", "")

	assert.Equal(t, 200, resp.Code)
	assert.EqualValues(t, 2, resp.Data.(map[string]any)["unreadCount"])
}

func TestCreate_RequiresOwnerOrAdmin(t *testing.T) {
	r, _ := setup(t)
	body := `{"audienceType":"common","title":"Maintenance"}`

	assert.Equal(t, 401, do(r, http.MethodPost, "/api/notifications", body, "").Code)
	assert.Equal(t, 401, do(r, http.MethodPost, "/api/notifications", body, "Bearer nope").Code)
	assert.Equal(t, 403, do(r, http.MethodPost, "/api/notifications", body, token(t, "T1", "TENANT")).Code)
}

func TestCreate_AsOwner(t *testing.T) {
	r, svc := setup(t)
	created := &model.Notification{ID: "n1", AudienceType: model.AudienceCommon, Title: "Maintenance", Author: "owner-1"}
	svc.On("Create", mock.Anything, mock.MatchedBy(func(req *dto.CreateNotificationReq) bool {
		return req.AudienceType == model.AudienceCommon && req.Title == "Maintenance"
	}), "owner-1").Return(&dto.CreateNotificationResp{Notification: created, Delivered: 2}, nil).Once()

	resp := do(r, http.MethodPost, "/api/notifications", `{"audienceType":"common","title":"Maintenance"}`, token(t, "owner-1", "OWNER"))

	assert.Equal(t, 200, resp.Code)
	assert.EqualValues(t, 2, resp.Data.(map[string]any)["delivered"])
}

func TestCreate_BadJSON(t *testing.T) {
	r, _ := setup(t)

	resp := do(r, http.MethodPost, "/api/notifications", `{"title":`, token(t, "admin", "ADMIN"))

	assert.Equal(t, 400, resp.Code)
}

func TestUpdate_AnyAuthenticatedUser(t *testing.T) {
	r, svc := setup(t)
	svc.On("MarkRead", mock.Anything, "n1", mock.MatchedBy(func(req *dto.UpdateNotificationReq) bool {
		return req.Read != nil && *req.Read
	})).Return(&dto.UpdateNotificationResp{Notification: &model.Notification{ID: "n1", Read: true}, Delivered: 1}, nil).Once()
	svc.On("MarkRead", mock.Anything, "missing", mock.Anything).Return(nil, service.ErrNotificationNotFound).Once()

	assert.Equal(t, 401, do(r, http.MethodPut, "/api/notifications/n1", `{"read":true}`, "").Code)
	assert.Equal(t, 200, do(r, http.MethodPut, "/api/notifications/n1", `{"read":true}`, token(t, "T1", "TENANT")).Code)

	resp := do(r, http.MethodPut, "/api/notifications/missing", `{"read":true}`, token(t, "T1", "TENANT"))
	assert.Equal(t, 404, resp.Code)
	assert.Equal(t, service.ErrNotificationNotFound.Error(), resp.Message)
}

func TestDelete_MissingIDIsNotAnError(t *testing.T) {
	r, svc := setup(t)
	svc.On("Delete", mock.Anything, "X").Return(&dto.DeleteNotificationResp{DeletedID: "X", Delivered: 4}, nil).Once()

	resp := do(r, http.MethodDelete, "/api/notifications/X", "", token(t, "owner-1", "OWNER"))

	assert.Equal(t, 200, resp.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "X", data["deletedId"])
	assert.Contains(t, data, "deletedRecord")
	assert.Nil(t, data["deletedRecord"])
}

func TestStats(t *testing.T) {
	r, _ := setup(t)

	resp := do(r, http.MethodGet, "/api/notifications/stats", "", "")

	assert.Equal(t, 200, resp.Code)
	assert.EqualValues(t, 0, resp.Data.(map[string]any)["connections"])
}
