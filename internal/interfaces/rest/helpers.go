package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/careflow/approvals/internal/interfaces/middleware"
	"github.com/careflow/approvals/pkg/auth"
	"github.com/careflow/approvals/pkg/errors"
)

// GetUserFromContext extracts the authenticated user from gin.Context
func GetUserFromContext(c *gin.Context) *auth.UserSession {
	value, exists := c.Get(middleware.ContextKeyUser)
	if !exists {
		return nil
	}
	user, ok := value.(auth.UserSession)
	if !ok {
		return nil
	}
	return &user
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	resp := errors.ToResponse(err)

	if code >= 500 {
		middleware.LoggerFrom(c).Error("request error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.Param("id")),
			zap.Int("status", code),
			zap.Error(err))
	}

	c.JSON(code, gin.H{
		"message": resp.Message,
		"code":    resp.Code,
		"data":    nil,
	})
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// requireUser returns the caller or responds 401 and returns nil.
func requireUser(c *gin.Context) *auth.UserSession {
	user := GetUserFromContext(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"message": "User not authenticated",
			"code":    "UNAUTHORIZED",
			"data":    nil,
		})
	}
	return user
}

// HandleGetEnvelope executes a read action and returns the result wrapped in a JSON key
// Response: { [key]: result }
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: result})
}
