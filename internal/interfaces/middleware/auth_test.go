package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careflow/approvals/pkg/auth"
)

var testSecret = []byte("middleware-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuth(testSecret), func(c *gin.Context) {
		user := c.MustGet(ContextKeyUser).(auth.UserSession)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	r.GET("/admin", RequireAuth(testSecret), RequireRole("approvals_admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(t *testing.T, r http.Handler, path, header string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := newRouter()
	token, err := auth.GenerateToken(testSecret, auth.UserSession{ID: "lead-1"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer garbage", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, r, "/me", tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := get(t, r, "/me", "Bearer "+token)
	assert.JSONEq(t, `{"id":"lead-1"}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newRouter()

	plain, err := auth.GenerateToken(testSecret, auth.UserSession{ID: "lead-1", Roles: []string{"clinical_lead"}}, time.Hour)
	require.NoError(t, err)
	admin, err := auth.GenerateToken(testSecret, auth.UserSession{ID: "admin-1", Roles: []string{"approvals_admin"}}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(t, r, "/admin", "Bearer "+plain).Code)
	assert.Equal(t, http.StatusNoContent, get(t, r, "/admin", "Bearer "+admin).Code)
}
