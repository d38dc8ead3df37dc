package validator

import (
	"github.com/go-playground/validator/v10"
)

// RequestValidator plugs go-playground/validator into echo's Validator hook.
type RequestValidator struct {
	Validator *validator.Validate
}

func New() *RequestValidator {
	return &RequestValidator{Validator: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.Validator.Struct(i)
}
