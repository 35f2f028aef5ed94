package errors

import (
	"fmt"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FormatConfig is modified by FormatOption functions.
type FormatConfig struct {
	// WithStack includes the error origin "[file:line]" in each message.
	WithStack bool
	// WithUnwrap includes also the original error, if the message has been replaced by the Wrap/Wrapf function.
	WithUnwrap bool
	// AsSentences formats each message with an upper-case first letter and a trailing dot.
	AsSentences bool
}

type FormatOption func(config *FormatConfig)

// MessageFormatter formats each error message, see defaultMessageFormatter.
type MessageFormatter func(msg string, trace StackTrace, config FormatConfig) string

// PrefixFormatter formats a prefix followed by a list of errors, see defaultPrefixFormatter.
type PrefixFormatter func(prefix string) string

func FormatWithStack() FormatOption {
	return func(config *FormatConfig) {
		config.WithStack = true
	}
}

func FormatWithUnwrap() FormatOption {
	return func(config *FormatConfig) {
		config.WithUnwrap = true
	}
}

func FormatAsSentences() FormatOption {
	return func(config *FormatConfig) {
		config.AsSentences = true
	}
}

func Format(err error, opts ...FormatOption) string {
	w := NewWriter(defaultMessageFormatter, defaultPrefixFormatter, opts...)
	w.WriteError(err)
	return w.String()
}

func defaultMessageFormatter(msg string, trace StackTrace, config FormatConfig) string {
	if config.AsSentences {
		msg = firstToUpper(msg)
		if !strings.HasSuffix(msg, ".") && !strings.HasSuffix(msg, ":") && !strings.HasSuffix(msg, "?") && !strings.HasSuffix(msg, "!") {
			msg += "."
		}
	}
	if config.WithStack && len(trace) > 0 {
		frame := trace[0]
		fn := runtime.FuncForPC(frame)
		file, line := fn.FileLine(frame)
		msg = fmt.Sprintf("%s [%s:%d]", msg, file, line)
	}
	return msg
}

func defaultPrefixFormatter(prefix string) string {
	return strings.TrimRight(prefix, ".,:") + ":"
}

func firstToUpper(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
