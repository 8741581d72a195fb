// Package validation wraps go-playground/validator and reports failures as
// field-scoped domain.ValidationError values keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/99minutos/userdesk/internal/core/domain"
)

// Validator checks structs tagged with `validate`. It also satisfies
// echo.Validator, so it can be assigned to echo.Echo.Validator directly.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator that names fields after their json tags.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns nil, a *domain.ValidationError, or the validator's own
// error when i cannot be validated at all.
func (val *Validator) Validate(i any) error {
	err := val.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldError(fe)
		}
	}
	return &domain.ValidationError{Fields: fields}
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
