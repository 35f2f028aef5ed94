// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"fmt"
	"io"

	"go.uber.org/zap/zapcore"
)

// lineCore formats each entry as "<prefix><LEVEL><separator><message>\n" and writes it to the writer.
type lineCore struct {
	zapcore.LevelEnabler
	writer    io.Writer
	prefix    string
	separator string
}

func newLineCore(writer io.Writer, prefix string, enabler zapcore.LevelEnabler, separator string) zapcore.Core {
	return &lineCore{LevelEnabler: enabler, writer: writer, prefix: prefix, separator: separator}
}

func (c *lineCore) With([]zapcore.Field) zapcore.Core {
	return c
}

func (c *lineCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *lineCore) Write(entry zapcore.Entry, _ []zapcore.Field) error {
	_, err := fmt.Fprintf(c.writer, "%s%s%s%s\n", c.prefix, entry.Level.CapitalString(), c.separator, entry.Message)
	return err
}

func (c *lineCore) Sync() error {
	if v, ok := c.writer.(interface{ Sync() error }); ok {
		return v.Sync()
	}
	return nil
}
