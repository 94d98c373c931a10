package controllers

import (
	"errors"
	"strings"

	"civicportal/models"

	"github.com/go-playground/validator/v10"
)

// bindingError turns a gin binding failure into a ValidationError with one entry per field.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.NewValidationError("body", "is malformed")
	}

	out := &models.ValidationError{}
	for _, fe := range verrs {
		out.Add(jsonName(fe.Field()), tagMessage(fe))
	}
	return out
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}
