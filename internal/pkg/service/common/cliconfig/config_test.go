package cliconfig_test

import (
	"net/netip"
	"net/url"
	"time"
)

// Config is a test configuration structure shared by the tests in the package.
type Config struct {
	Embedded         `mapstructure:",squash"`
	String           string         `mapstructure:"string" sensitive:"true"`
	Int              int            `mapstructure:"int"`
	Float            float64        `mapstructure:"float"`
	StringWithUsage  string         `mapstructure:"string-with-usage" usage:"An usage text."`
	Duration         time.Duration  `mapstructure:"duration"`
	DurationNullable *time.Duration `mapstructure:"duration-nullable"`
	URL              *url.URL       `mapstructure:"url"`
	Addr             netip.Addr     `mapstructure:"address"`
	AddrNullable     *netip.Addr    `mapstructure:"address-nullable"`
	Nested           Nested         `mapstructure:"nested"`
}

type Embedded struct {
	EmbeddedField string `mapstructure:"embedded"`
}

type Nested struct {
	Foo string `mapstructure:"foo-123"`
	Bar int    `mapstructure:"bar"`
}
