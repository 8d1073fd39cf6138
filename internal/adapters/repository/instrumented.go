package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/cosmic-journey/pkg/metrics"
)

// instrumented records latency and failures of every store call.
type instrumented struct {
	next Store
}

// Instrument wraps s so each call is reported to the metrics registry.
func Instrument(s Store) Store {
	return &instrumented{next: s}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err == nil {
		return
	}
	metrics.RecordStoreError(op, ErrorKind(err))
	if errors.Is(err, ErrConflict) {
		metrics.RecordStoreConflict()
	}
}

// ErrorKind labels a store error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "upstream"
	}
}

func (i *instrumented) Create(ctx context.Context, collection string, fields map[string]any) (rec Record, err error) {
	defer func(start time.Time) { observe("create", start, err) }(time.Now())
	return i.next.Create(ctx, collection, fields)
}

func (i *instrumented) GetOne(ctx context.Context, collection, id string) (rec Record, err error) {
	defer func(start time.Time) { observe("get_one", start, err) }(time.Now())
	return i.next.GetOne(ctx, collection, id)
}

func (i *instrumented) GetList(ctx context.Context, collection string, page, perPage int, opts ListOptions) (res ListResult, err error) {
	defer func(start time.Time) { observe("get_list", start, err) }(time.Now())
	return i.next.GetList(ctx, collection, page, perPage, opts)
}

func (i *instrumented) GetFullList(ctx context.Context, collection string, opts ListOptions) (recs []Record, err error) {
	defer func(start time.Time) { observe("get_full_list", start, err) }(time.Now())
	return i.next.GetFullList(ctx, collection, opts)
}

func (i *instrumented) GetFirstListItem(ctx context.Context, collection string, opts ListOptions) (rec Record, err error) {
	defer func(start time.Time) { observe("get_first_list_item", start, err) }(time.Now())
	return i.next.GetFirstListItem(ctx, collection, opts)
}

func (i *instrumented) Update(ctx context.Context, collection, id string, fields map[string]any, opts ...UpdateOption) (rec Record, err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())
	return i.next.Update(ctx, collection, id, fields, opts...)
}

func (i *instrumented) Delete(ctx context.Context, collection, id string) (err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())
	return i.next.Delete(ctx, collection, id)
}

func (i *instrumented) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { observe("ping", start, err) }(time.Now())
	return i.next.Ping(ctx)
}

func (i *instrumented) Close() error { return i.next.Close() }
