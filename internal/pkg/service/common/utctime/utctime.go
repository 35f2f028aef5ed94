// Package utctime provides a time type that is always serialized to the same format, in UTC.
package utctime

import (
	"strings"
	"time"
)

const TimeFormat = "2006-01-02T15:04:05.000Z"

// UTCTime is always serialized to the TimeFormat, in UTC.
type UTCTime time.Time

func From(t time.Time) UTCTime {
	return UTCTime(t.UTC())
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func (v UTCTime) String() string {
	return FormatTime(v.Time())
}

func (v UTCTime) IsZero() bool {
	return v.Time().IsZero()
}

func (v UTCTime) Time() time.Time {
	return time.Time(v)
}

func (v UTCTime) After(target UTCTime) bool {
	return v.Time().After(target.Time())
}

func (v UTCTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

func (v *UTCTime) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	out, err := time.Parse(TimeFormat, str)
	if err != nil {
		return err
	}
	*v = UTCTime(out)
	return nil
}
