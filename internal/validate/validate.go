// Package validate checks request DTOs and reports failures keyed by JSON
// field name.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mindmend/backend/internal/apierr"
)

// namePattern allows letters, digits, spaces and @/./+/-/_.
var namePattern = regexp.MustCompile(`^[\w.@+\-\s]+$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = val.RegisterValidation("displayname", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	return val
}

// Struct validates s. A failure is returned as an apierr validation error
// with msg as its message.
func Struct(msg string, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := apierr.Validation(msg, nil)
	for _, fe := range verrs {
		out.WithField(fe.Field(), describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "displayname":
		return "Enter a valid name. This value may contain only letters, numbers, and @/./+/-/_/ spaces characters."
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}
