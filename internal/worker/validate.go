package worker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report parameter names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("param"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateSettings validates a worker's typed settings struct using its `validate` tags and,
// when present, its Validate method. The first failure is returned as a *ConfigurationError.
func ValidateSettings(settings any) error {
	if err := validate.Struct(settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			e := fieldErrs[0]
			return &ConfigurationError{Field: e.Field(), Reason: formatValidationMessage(e)}
		}
		return &ConfigurationError{Field: "_settings", Reason: err.Error()}
	}

	if v, ok := settings.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			var cfgErr *ConfigurationError
			if errors.As(err, &cfgErr) {
				return cfgErr
			}
			return &ConfigurationError{Field: "_custom", Reason: err.Error()}
		}
	}
	return nil
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "required parameter is missing"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "hostname_rfc1123", "hostname", "ip", "hostname|ip":
		return "must be a valid hostname or IP address"
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
