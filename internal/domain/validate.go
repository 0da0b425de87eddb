package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator.Validate caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs tag validation and converts the first failure into a
// *ValidationError so callers only ever see domain errors.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewValidationError(strings.ToLower(fe.Field()), "failed '"+fe.Tag()+"' check", nil)
	}
	return NewValidationError("struct", err.Error(), nil)
}
