package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrVersionConflict     = errors.New("version conflict")
	ErrStorage             = errors.New("storage failure")
	ErrUnsupportedSchema   = errors.New("unsupported schema version")
	ErrInvalidPatch        = errors.New("invalid patch")
)
