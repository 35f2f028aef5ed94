// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger is default implementation of the Logger interface.
// It is a wrapped zap.SugaredLogger.
// The core is built by the coreFactory, so the prefix can be baked into the output format.
type zapLogger struct {
	*zap.SugaredLogger
	coreFactory func(prefix string) zapcore.Core
	prefix      string
}

func newLogger(coreFactory func(prefix string) zapcore.Core) *zapLogger {
	return newLoggerWithPrefix(coreFactory, "")
}

func newLoggerWithPrefix(coreFactory func(prefix string) zapcore.Core, prefix string) *zapLogger {
	return &zapLogger{
		SugaredLogger: zap.New(coreFactory(prefix)).Sugar(),
		coreFactory:   coreFactory,
		prefix:        prefix,
	}
}

func (l *zapLogger) AddPrefix(prefix string) Logger {
	return newLoggerWithPrefix(l.coreFactory, l.prefix+prefix)
}

func (l *zapLogger) DebugWriter() *LevelWriter {
	return &LevelWriter{logger: l, level: DebugLevel}
}

func (l *zapLogger) InfoWriter() *LevelWriter {
	return &LevelWriter{logger: l, level: InfoLevel}
}

func (l *zapLogger) WarnWriter() *LevelWriter {
	return &LevelWriter{logger: l, level: WarnLevel}
}

func (l *zapLogger) ErrorWriter() *LevelWriter {
	return &LevelWriter{logger: l, level: ErrorLevel}
}
