package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/config"
	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/utils"
)

var testCfg = &config.Config{
	JWTSecret:                 "access",
	JWTRefreshSecret:          "refresh",
	JWTExpirationMinutes:      15,
	JWTRefreshExpirationHours: 24,
}

func tokenFor(t *testing.T, role models.Role) string {
	t.Helper()
	user := &models.User{Role: role}
	user.ID = "user-" + string(role)
	access, _, err := utils.GenerateTokens(user, testCfg)
	require.NoError(t, err)
	return access
}

func guardedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(testCfg))
	router.GET("/me", func(c *gin.Context) {
		id, _ := GetUserIDFromContext(c)
		c.String(http.StatusOK, id)
	})
	router.GET("/admin", RoleAuthMiddleware(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router := guardedRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/me", "Bearer not-a-jwt").Code)

	w := serve(router, "/me", "Bearer "+tokenFor(t, models.RoleDoctor))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-doctor", w.Body.String())
}

func TestRoleAuthMiddleware(t *testing.T) {
	router := guardedRouter()

	assert.Equal(t, http.StatusForbidden, serve(router, "/admin", "Bearer "+tokenFor(t, models.RoleDoctor)).Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "/admin", "Bearer "+tokenFor(t, models.RoleAdmin)).Code)
}

func TestRequestIDAndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), RequestLogger(zap.NewNop()), Recovery(zap.NewNop()))
	router.GET("/panic", func(c *gin.Context) { panic("unexpected nil chart") })
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = serve(router, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), "unexpected nil chart")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantErr   bool
	}{
		{"Bearer abc.def", "abc.def", false},
		{"bearer abc.def", "abc.def", false},
		{"", "", true},
		{"Bearer", "", true},
		{"Bearer ", "", true},
		{"Basic abc", "", true},
		{"Bearer a b", "", true},
	}

	for _, tt := range tests {
		token, reason := bearerToken(tt.header)
		assert.Equal(t, tt.wantToken, token, tt.header)
		assert.Equal(t, tt.wantErr, reason != "", tt.header)
	}
}
