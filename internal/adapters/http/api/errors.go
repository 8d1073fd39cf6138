package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/pkg/logger"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthenticated = errors.New("not logged in")
)

// Wrap annotates err with the handler operation.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// statusFor maps a domain error onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch kind := model.Kind(err); kind {
	case "invalid_input":
		return http.StatusBadRequest, kind
	case "invalid_state":
		return http.StatusBadRequest, kind
	case "unauthorized":
		return http.StatusUnauthorized, kind
	case "forbidden":
		return http.StatusForbidden, kind
	case "not_found":
		return http.StatusNotFound, kind
	case "conflict":
		return http.StatusConflict, kind
	case "upstream_unavailable":
		return http.StatusBadGateway, kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeFailure writes err with its mapped status. Server side failures are
// logged; client errors are left to the access metrics.
func writeFailure(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("op", op), logger.Int("status", status), logger.Error(err))
	}
	writeError(w, status, code, Wrap(op, err))
}
