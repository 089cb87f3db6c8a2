// Package validation validates API request bodies with validator/v10 and
// reports failures as domain validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
	"github.com/inkwellapp/inkwell-server/internal/id"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the approval-specific tags registered:
//
//	field      a reviewable field name (metadata fields and "rename")
//	session_id an approval session id
//	series_key a "source:id" series key or bare source id
func New() *Validator {
	v := validator.New()

	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("field", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return name == domain.FieldRename || domain.IsMetadataField(name)
	})
	_ = v.RegisterValidation("session_id", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), id.PrefixApprovalSession+"-")
	})
	_ = v.RegisterValidation("series_key", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		source, sourceID, found := strings.Cut(s, ":")
		if !found {
			return !strings.ContainsAny(s, " \t")
		}
		return source != "" && sourceID != ""
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string)
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}

	return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
}

//nolint:gocyclo // Switch statement covering validation tags is intentionally exhaustive.
func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.Slice || e.Kind() == reflect.Map {
			return fmt.Sprintf("must contain at least %s items", e.Param())
		}
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		if e.Kind() == reflect.Slice || e.Kind() == reflect.Map {
			return fmt.Sprintf("must not contain more than %s items", e.Param())
		}
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "field":
		return "must be a known metadata field"
	case "session_id":
		return "must be an approval session id"
	case "series_key":
		return "must be a series key like source:id"
	default:
		return "is invalid"
	}
}
