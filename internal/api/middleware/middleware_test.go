package middleware

import (
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/logger"
	"Homestead/internal/pkg/security"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code int `json:"code"`
	Data any `json:"data"`
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/t", append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, envelope{Code: 200, Data: c.GetString(consts.CtxUserID)})
	})...)
	return r
}

func do(r http.Handler, header http.Header) envelope {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out envelope
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func bearer(t *testing.T, userID string, roles ...string) http.Header {
	t.Helper()
	security.Configure("middleware-test-secret", "homestead-test", time.Hour)
	token, err := security.GenerateToken(userID, roles)
	require.NoError(t, err)
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestRedactQuery(t *testing.T) {
	q, err := url.ParseQuery("recipientId=T1&token=secret.jwt.value")
	require.NoError(t, err)

	out := redactQuery(q)
	assert.Contains(t, out, "recipientId=T1")
	assert.Contains(t, out, "token=[PROTECTED]")
	assert.NotContains(t, out, "secret")
}

func TestAuditWriter_Truncates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	aw := &auditWriter{ResponseWriter: c.Writer}

	payload := strings.Repeat("a", maxAuditBody+10)
	n, err := aw.Write([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, len(payload), n)
	assert.Equal(t, maxAuditBody, aw.body.Len())
	assert.True(t, aw.truncated)
	assert.Equal(t, len(payload), w.Body.Len())
}

func TestTraceMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	var seen string
	r.GET("/t", func(c *gin.Context) {
		seen = logger.TraceID(c.Request.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(TraceHeader, "upstream-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-1", seen)
	assert.Equal(t, "upstream-1", w.Header().Get(TraceHeader))

	req = httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(TraceHeader, strings.Repeat("x", maxTraceIDLen+1))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, seen, 36)
}

func TestAuthMiddleware(t *testing.T) {
	r := newEngine(AuthMiddleware())

	assert.Equal(t, 401, do(r, nil).Code)
	assert.Equal(t, 401, do(r, http.Header{"Authorization": []string{"Bearer not-a-jwt"}}).Code)

	out := do(r, bearer(t, "owner-1", consts.RoleOwner))
	assert.Equal(t, 200, out.Code)
	assert.Equal(t, "owner-1", out.Data)
}

func TestAuthOptionalMiddleware(t *testing.T) {
	r := newEngine(AuthOptionalMiddleware())

	out := do(r, nil)
	assert.Equal(t, 200, out.Code)
	assert.Equal(t, "", out.Data)

	out = do(r, http.Header{"Authorization": []string{"Bearer broken"}})
	assert.Equal(t, 200, out.Code)
	assert.Equal(t, "", out.Data)

	out = do(r, bearer(t, "T1", consts.RoleTenant))
	assert.Equal(t, "T1", out.Data)
}

func TestCheckRoles(t *testing.T) {
	r := newEngine(AuthMiddleware(), CheckRoles(consts.RoleOwner, consts.RoleAdmin))

	assert.Equal(t, 403, do(r, bearer(t, "T1", consts.RoleTenant)).Code)
	assert.Equal(t, 200, do(r, bearer(t, "A1", consts.RoleAdmin)).Code)
}
