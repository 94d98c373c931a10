// Package response writes the JSON bodies shared by handlers and middlewares.
package response

import (
	"errors"
	"net/http"

	"civicportal/models"

	"github.com/gin-gonic/gin"
)

// Error aborts the request with the status and body matching err.
func Error(c *gin.Context, err error) {
	ErrorWithMessage(c, err, "")
}

// ErrorWithMessage is Error with a caller supplied client message.
// Internal errors always get a generic message; the detail is attached to the gin
// context so the request logger records it.
func ErrorWithMessage(c *gin.Context, err error, message string) {
	status, code, fallback := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		message = ""
	}
	if message == "" {
		message = fallback
	}

	body := gin.H{"message": message, "error": code}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		body["errors"] = verr.Errors
	}
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "Authentication required"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden", "Not authorized to perform this action"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "validation_error", "Validation failed"
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, "conflict", "Resource already exists"
	case errors.Is(err, models.ErrInvalidFileType):
		return http.StatusBadRequest, "invalid_file_type", "Images only! Allowed types: jpg, jpeg, png, gif"
	case errors.Is(err, models.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large", "File too large"
	default:
		return http.StatusInternalServerError, "internal_error", "Server error"
	}
}
