package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Decimals validate as their sign, so gt=0 means strictly positive at any
	// precision.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.Sign()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the field constraints of a normalised input and reports the
// first violation as a *ValidationError.
func (in MovementInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate movement: %w", err)
	}
	return fieldError(fieldErrs[0])
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	switch field {
	case "amount":
		return &ValidationError{Field: field, Reason: "must be greater than zero", Err: ErrInvalidAmount}
	case "description":
		return &ValidationError{Field: field, Reason: "must not be empty", Err: ErrEmptyDescription}
	case "category":
		return &ValidationError{Field: field, Reason: "must not be empty", Err: ErrEmptyCategory}
	case "user":
		return &ValidationError{Field: field, Reason: "must not be empty", Err: ErrEmptyUser}
	default:
		return &ValidationError{Field: field, Reason: fmt.Sprintf("failed %q check", fe.Tag())}
	}
}

// ValidateCategoryName trims name and rejects an empty result.
func ValidateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "category", Reason: "must not be empty", Err: ErrEmptyCategory}
	}
	return name, nil
}
