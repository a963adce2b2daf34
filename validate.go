package ucheckout

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	validate      = newValidator()
)

// Validate checks a capture-context request received by the backend.
func (r CaptureContextRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

// Validate checks a charge request received by the backend.
func (r ChargeRequest) Validate() error {
	if r.TransientToken.IsZero() {
		return fmt.Errorf("transientToken %w", errEmptyToken)
	}
	if err := validate.Struct(r); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok || !amountPattern.MatchString(value) {
			return false
		}
		parsed, err := strconv.ParseFloat(value, 64)
		return err == nil && parsed > 0
	}); err != nil {
		panic(err)
	}

	return v
}

func normalizeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	first := validationErrs[0]
	return &ValidationError{Field: jsonPath(first), Message: validationMessage(first)}
}

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func jsonPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return fe.Field()
	}
	return path
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "amount":
		return "must be a positive decimal amount"
	case "iso4217":
		return "must be an ISO-4217 currency code"
	case "iso3166_1_alpha2":
		return "must be an ISO-3166 alpha-2 country code"
	case "url":
		return "must be an absolute origin URL"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
