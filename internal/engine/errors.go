package engine

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrBadRequest          = errors.New("bad request")
	ErrUnknownRelation     = errors.New("relationship targets an unknown list")
	ErrUnknownReference    = errors.New("referenced document does not exist")
	ErrDuplicateCollection = errors.New("duplicate collection")
	ErrStoreClosed         = errors.New("store closed")
)
