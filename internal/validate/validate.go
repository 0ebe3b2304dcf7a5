// Package validate checks operation inputs against go-playground/validator
// struct tags and reports failures as apperr.ErrInvalidInput.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jun/drivegate/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates s. Tag failures become an InvalidInput error naming each
// field.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), msgForTag(fe)))
	}
	return apperr.New(apperr.ErrInvalidInput, "%s", strings.Join(msgs, "; "))
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "base64":
		return "must be base64 encoded"
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
