package telemetry

import (
	"context"
	"net"

	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// ErrorType returns a short string for the error type, for example for a metric attribute.
func ErrorType(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "net_timeout"
		}
		return "net"
	default:
		return "other"
	}
}
