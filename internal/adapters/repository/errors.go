package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("revision conflict")
	ErrInvalidInput = errors.New("invalid store request")
	ErrUpstream     = errors.New("store unavailable")
	ErrClosed       = errors.New("store closed")
)
