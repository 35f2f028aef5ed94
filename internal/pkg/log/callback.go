// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"go.uber.org/zap/zapcore"
)

// NewCallbackLogger calls the callback with each logged message.
// It is used to bridge logs from libraries with an own logger, for example the etcd client.
func NewCallbackLogger(callback func(entry zapcore.Entry, fields []zapcore.Field)) Logger {
	return newLogger(func(prefix string) zapcore.Core {
		return &callbackCore{callback: callback, prefix: prefix}
	})
}

// NewCallbackCore is the NewCallbackLogger variant for libraries that require a zap logger.
func NewCallbackCore(callback func(entry zapcore.Entry, fields []zapcore.Field)) zapcore.Core {
	return &callbackCore{callback: callback}
}

type callbackCore struct {
	callback func(entry zapcore.Entry, fields []zapcore.Field)
	prefix   string
}

func (c *callbackCore) Enabled(zapcore.Level) bool {
	return true
}

func (c *callbackCore) With([]zapcore.Field) zapcore.Core {
	return c
}

func (c *callbackCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return checked.AddCore(entry, c)
}

func (c *callbackCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if c.prefix != "" {
		entry.Message = c.prefix + entry.Message
	}
	c.callback(entry, fields)
	return nil
}

func (c *callbackCore) Sync() error {
	return nil
}
