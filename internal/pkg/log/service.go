// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"io"

	"go.uber.org/zap/zapcore"
)

// NewServiceLogger logs to the writer, the debug level is enabled by the verbose flag.
func NewServiceLogger(writer io.Writer, verbose bool) Logger {
	minLevel := InfoLevel
	if verbose {
		minLevel = DebugLevel
	}
	return newLogger(func(prefix string) zapcore.Core {
		return newLineCore(writer, prefix, minLevel, " ")
	})
}
