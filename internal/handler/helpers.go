package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

func formatValidationErrors(err error) map[string]string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	errors := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		errors[lowerFirst(e.Field())] = e.Tag()
	}
	return errors
}

// firstValidationMessage renders one field error as "prompt is required"
func firstValidationMessage(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return "Validation failed"
	}
	e := validationErrors[0]
	field := lowerFirst(e.Field())
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + e.Param() + " characters"
	}
	return field + " is invalid"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
