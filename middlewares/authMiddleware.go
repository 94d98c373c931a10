package middlewares

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"civicportal/models"
	"civicportal/policy"
	"civicportal/response"
	authUtils "civicportal/utils"

	"github.com/gin-gonic/gin"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	ParseToken(token string) (*authUtils.Claims, error)
}

// UserFinder resolves token subjects to stored users.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware requires a valid bearer token and attaches the resolved user to the request.
// The user is loaded from the store so role changes and deletions apply immediately.
func AuthMiddleware(tokens TokenParser, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.ErrorWithMessage(c, models.ErrUnauthorized, "No authorization token provided")
			return
		}

		claims, err := tokens.ParseToken(tokenString)
		if err != nil {
			response.ErrorWithMessage(c, models.ErrUnauthorized, "Invalid or expired token")
			return
		}

		user, err := users.FindByID(c.Request.Context(), claims.UserID)
		if errors.Is(err, models.ErrNotFound) {
			response.ErrorWithMessage(c, models.ErrUnauthorized, "User no longer exists")
			return
		}
		if err != nil {
			response.Error(c, fmt.Errorf("resolve token user: %w", err))
			return
		}

		SetAuthUser(c, user.AuthUser())
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware; it rejects callers without the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := CurrentUser(c)
		if err := policy.Authorize(user, policy.ActionAdminArea, nil); err != nil {
			response.ErrorWithMessage(c, err, "Admin access required")
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
