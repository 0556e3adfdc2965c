package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate

	// aliasRegex matches provider aliases
	aliasRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// mimeRegex is a loose type/subtype check
	mimeRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*/[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*$`)
)

func init() {
	validate = validator.New()

	// Report fields by their JSON names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("alias", func(fl validator.FieldLevel) bool {
		return aliasRegex.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("mimetype", func(fl validator.FieldLevel) bool {
		return mimeRegex.MatchString(fl.Field().String())
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, msg := range e.Fields {
		parts = append(parts, msg)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Field()
		tag := err.Tag()

		switch tag {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "alias":
			fields[field] = fmt.Sprintf("%s may only contain letters, digits, '-' and '_'", field)
		case "mimetype":
			fields[field] = fmt.Sprintf("%s must be a MIME type like image/png", field)
		case "base64":
			fields[field] = fmt.Sprintf("%s must be base64 encoded", field)
		case "min":
			fields[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "gte":
			fields[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "lte":
			fields[field] = fmt.Sprintf("%s must be less than or equal to %s", field, err.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// NewFieldError creates a ValidationError for a single field
func NewFieldError(field, message string) *ValidationError {
	return &ValidationError{
		Message: "Validation failed",
		Fields:  map[string]string{field: message},
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// ValidateAlias checks a provider alias
func ValidateAlias(alias string) error {
	if alias == "" {
		return NewFieldError("llm", "llm is required")
	}
	if !aliasRegex.MatchString(alias) {
		return NewFieldError("llm", fmt.Sprintf("invalid llm %q: may only contain letters, digits, '-' and '_'", alias))
	}
	return nil
}

// ValidateStringLength validates string length constraints, counted in characters
func ValidateStringLength(s string, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(s)
	if min > 0 && length < min {
		return NewFieldError(fieldName, fmt.Sprintf("%s must be at least %d characters", fieldName, min))
	}
	if max > 0 && length > max {
		return NewFieldError(fieldName, fmt.Sprintf("%s must be at most %d characters", fieldName, max))
	}
	return nil
}

// DecodeBase64 decodes standard base64, rejecting payloads over maxBytes
func DecodeBase64(data string, fieldName string, maxBytes int) ([]byte, error) {
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(data)) > maxBytes+2 {
		return nil, NewFieldError(fieldName, fmt.Sprintf("%s exceeds %d bytes", fieldName, maxBytes))
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, NewFieldError(fieldName, fmt.Sprintf("%s must be base64 encoded", fieldName))
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return nil, NewFieldError(fieldName, fmt.Sprintf("%s exceeds %d bytes", fieldName, maxBytes))
	}
	return raw, nil
}
