// Package validation provides input validation utilities
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"feedhub/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
}

var messages = map[string]string{
	"required": "%s is required.",
	"email":    "%s must be a valid email address.",
	"min":      "%s must be at least %s characters long.",
	"max":      "%s must be no longer than %s characters.",
}

func message(e validator.FieldError) string {
	msg, ok := messages[e.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid.", e.Field())
	}
	if strings.Count(msg, "%s") == 2 {
		return fmt.Sprintf(msg, e.Field(), e.Param())
	}
	return fmt.Sprintf(msg, e.Field())
}

// Struct validates s against its `validate` tags and returns one detail per
// failed field, keyed by the field's JSON name.
func Struct(s any) []models.ValidationDetail {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []models.ValidationDetail{{Field: "input", Message: err.Error()}}
	}
	details := make([]models.ValidationDetail, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		details = append(details, models.ValidationDetail{Field: e.Field(), Message: message(e)})
	}
	return details
}

// Check validates s and wraps any failures in a ValidationError with the given message.
func Check(s any, msg string) error {
	if details := Struct(s); len(details) > 0 {
		return models.NewValidationError(msg, details...)
	}
	return nil
}
