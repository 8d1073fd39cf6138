package queue

import "errors"

// Sentinel kinds for mutation queue errors.
var (
	ErrStopped    = errors.New("mutation writer stopped")
	ErrQueueFull  = errors.New("mutation queue full")
	ErrNotStarted = errors.New("mutation writer not started")
)
