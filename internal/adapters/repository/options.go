package repository

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Option applies a configuration option to a store driver.
type Option func(*options)

type options struct {
	now        func() time.Time
	newID      func() string
	httpClient *http.Client
	token      string
	timeout    time.Duration
	pageSize   int
}

func defaultOptions() options {
	return options{
		now:      time.Now,
		newID:    uuid.NewString,
		timeout:  5 * time.Second,
		pageSize: 500,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets how local drivers assign record ids.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithHTTPClient sets the client used by the PocketBase driver.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithToken sets the PocketBase authorization token.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithFullListPageSize sets the page size GetFullList uses against PocketBase.
func WithFullListPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}
