// Package repository is the document store boundary. Collections hold
// schemaless records addressed by id and queried with structured filters.
package repository

import (
	"context"
	"time"
)

// Store provides read/write access to record collections.
type Store interface {
	// Create inserts a record and returns it with system fields set.
	Create(ctx context.Context, collection string, fields map[string]any) (Record, error)
	// GetOne returns ErrNotFound if id is unknown.
	GetOne(ctx context.Context, collection, id string) (Record, error)
	// GetList returns one page of matching records plus total counts.
	GetList(ctx context.Context, collection string, page, perPage int, opts ListOptions) (ListResult, error)
	// GetFullList returns every matching record.
	GetFullList(ctx context.Context, collection string, opts ListOptions) ([]Record, error)
	// GetFirstListItem returns the first match or ErrNotFound.
	GetFirstListItem(ctx context.Context, collection string, opts ListOptions) (Record, error)
	// Update merges fields into the record and bumps its revision.
	// With IfRevision, a stale revision fails with ErrConflict.
	Update(ctx context.Context, collection, id string, fields map[string]any, opts ...UpdateOption) (Record, error)
	// Delete returns ErrNotFound if id is unknown.
	Delete(ctx context.Context, collection, id string) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// ListOptions narrows and orders a query.
type ListOptions struct {
	Filter Filter
	Sort   Sort
}

// ListResult is one page of a query.
type ListResult struct {
	Items      []Record `json:"items"`
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	TotalItems int      `json:"totalItems"`
	TotalPages int      `json:"totalPages"`
}

// UpdateOption conditions an update.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	ifRevision *int64
}

// IfRevision makes the update succeed only while the stored revision is rev.
func IfRevision(rev int64) UpdateOption {
	return func(o *updateOptions) { o.ifRevision = &rev }
}

func applyUpdateOptions(opts []UpdateOption) updateOptions {
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// System field names every record carries.
const (
	FieldID       = "id"
	FieldCreated  = "created"
	FieldUpdated  = "updated"
	FieldRevision = "revision"
)

// TimeLayout is the canonical timestamp encoding. It sorts lexicographically.
const TimeLayout = "2006-01-02 15:04:05.000Z"

// FormatTime encodes t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a timestamp written by any driver.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{TimeLayout, "2006-01-02 15:04:05Z", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func pageCount(total, perPage int) int {
	if perPage < 1 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
