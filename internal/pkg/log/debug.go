// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taskgrid/taskgrid/internal/pkg/utils/ioutil"
)

const debugSeparator = "  "

type debugLogger struct {
	*zapLogger
	all         *ioutil.AtomicWriter
	infoOrAbove *ioutil.AtomicWriter
	debug       *ioutil.AtomicWriter
	info        *ioutil.AtomicWriter
	warn        *ioutil.AtomicWriter
	warnOrError *ioutil.AtomicWriter
	error       *ioutil.AtomicWriter
}

// NewDebugLogger logs to the memory, messages can be read and asserted in tests, see the DebugLogger interface.
func NewDebugLogger() DebugLogger {
	l := &debugLogger{
		all:         ioutil.NewAtomicWriter(),
		infoOrAbove: ioutil.NewAtomicWriter(),
		debug:       ioutil.NewAtomicWriter(),
		info:        ioutil.NewAtomicWriter(),
		warn:        ioutil.NewAtomicWriter(),
		warnOrError: ioutil.NewAtomicWriter(),
		error:       ioutil.NewAtomicWriter(),
	}
	l.zapLogger = newLogger(func(prefix string) zapcore.Core {
		return zapcore.NewTee(
			newLineCore(l.all, prefix, DebugLevel, debugSeparator),
			newLineCore(l.infoOrAbove, prefix, InfoLevel, debugSeparator),
			newLineCore(l.debug, prefix, exactLevel(DebugLevel), debugSeparator),
			newLineCore(l.info, prefix, exactLevel(InfoLevel), debugSeparator),
			newLineCore(l.warn, prefix, exactLevel(WarnLevel), debugSeparator),
			newLineCore(l.warnOrError, prefix, WarnLevel, debugSeparator),
			newLineCore(l.error, prefix, exactLevel(ErrorLevel), debugSeparator),
		)
	})
	return l
}

func (l *debugLogger) ConnectTo(writer io.Writer) {
	l.all.ConnectTo(writer)
}

func (l *debugLogger) ConnectInfoTo(writer io.Writer) {
	l.infoOrAbove.ConnectTo(writer)
}

func (l *debugLogger) Truncate() {
	for _, w := range l.writers() {
		w.Truncate()
	}
}

func (l *debugLogger) AllMessages() string {
	defer l.Truncate()
	return l.all.String()
}

func (l *debugLogger) DebugMessages() string {
	defer l.Truncate()
	return l.debug.String()
}

func (l *debugLogger) InfoMessages() string {
	defer l.Truncate()
	return l.info.String()
}

func (l *debugLogger) WarnMessages() string {
	defer l.Truncate()
	return l.warn.String()
}

func (l *debugLogger) WarnAndErrorMessages() string {
	defer l.Truncate()
	return l.warnOrError.String()
}

func (l *debugLogger) ErrorMessages() string {
	defer l.Truncate()
	return l.error.String()
}

func (l *debugLogger) writers() []*ioutil.AtomicWriter {
	return []*ioutil.AtomicWriter{l.all, l.infoOrAbove, l.debug, l.info, l.warn, l.warnOrError, l.error}
}

func exactLevel(level zapcore.Level) zapcore.LevelEnabler {
	return zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l == level
	})
}
