package telemetry

import (
	ddtracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
)

type ddLogger struct {
	log.Logger
}

func (l ddLogger) Log(msg string) {
	l.Info(msg)
}

// NewDDLogger routes DataDog tracer messages to the service logger.
func NewDDLogger(logger log.Logger) ddtracer.Logger {
	return ddLogger{Logger: logger.AddPrefix("[datadog]")}
}
