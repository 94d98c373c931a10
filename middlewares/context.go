package middlewares

import (
	"civicportal/models"

	"github.com/gin-gonic/gin"
)

const (
	authUserKey  = "authUser"
	requestIDKey = "requestID"
)

// SetAuthUser attaches the authenticated caller to the request.
func SetAuthUser(c *gin.Context, user models.AuthUser) {
	c.Set(authUserKey, user)
}

// CurrentUser returns the caller attached by AuthMiddleware.
func CurrentUser(c *gin.Context) (models.AuthUser, bool) {
	v, exists := c.Get(authUserKey)
	if !exists {
		return models.AuthUser{}, false
	}
	user, ok := v.(models.AuthUser)
	return user, ok && user.Authenticated()
}

// RequestIDFrom returns the id assigned by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
