package schema

import "errors"

var (
	ErrUnknownType       = errors.New("unknown field type")
	ErrUnknownAttribute  = errors.New("unknown field attribute")
	ErrInvalidAttribute  = errors.New("invalid field attribute")
	ErrInvalidDefinition = errors.New("invalid schema definition")
	ErrInvalidName       = errors.New("invalid name")
	ErrValidation        = errors.New("document validation failed")
)
