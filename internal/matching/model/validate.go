package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalid = errors.New("invalid")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a value decoded at a boundary (store row, request body).
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return describe(v, err)
	}
	if e, ok := v.(CatalogEntry); ok && e.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: partida %q has negative unit price %s", ErrInvalid, e.Code, e.UnitPrice)
	}
	return nil
}

func describe(input any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.StructField(), fe.Tag()))
	}
	return fmt.Errorf("%w %T: %s", ErrInvalid, input, strings.Join(parts, "; "))
}
