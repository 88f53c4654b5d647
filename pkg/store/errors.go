package store

import "errors"

var (
	ErrNotFound         = errors.New("store: key not found")
	ErrRevisionMismatch = errors.New("store: revision mismatch")
)
