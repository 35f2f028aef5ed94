// Package config provides configuration of the Grid Worker.
package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/cliconfig"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdclient"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/security"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// ENVPrefix is a prefix of the environment variables mapped to the configuration fields.
const ENVPrefix = "GRID_"

// Config of the Grid Worker.
type Config struct {
	Debug              bool                   `mapstructure:"debug" usage:"Enable debug log level."`
	DebugEtcd          bool                   `mapstructure:"debug-etcd" usage:"Enable logging of each etcd KV operation as a debug message."`
	DatadogEnabled     bool                   `mapstructure:"datadog-enabled" usage:"Enable Datadog telemetry integration."`
	DatadogDebug       bool                   `mapstructure:"datadog-debug" usage:"Enable Datadog debug logs."`
	CPUProfFilePath    string                 `mapstructure:"cpu-profile" usage:"Write cpu profile to the file."`
	Etcd               etcdclient.Credentials `mapstructure:",squash"`
	EtcdConnectTimeout time.Duration          `mapstructure:"etcd-connect-timeout" usage:"etcd connect timeout."`
	Security           security.Config        `mapstructure:",squash"`
}

func NewConfig() Config {
	return Config{
		Debug:           false,
		DebugEtcd:       false,
		DatadogEnabled:  true,
		DatadogDebug:    false,
		CPUProfFilePath: "",
		Etcd: etcdclient.Credentials{
			Endpoint:  "",
			Namespace: "",
			Username:  "",
			Password:  "",
		},
		EtcdConnectTimeout: 30 * time.Second, // longer default timeout, the etcd could be started at the same time as the worker
		Security:           security.NewConfig(),
	}
}

// LoadFrom the command flags and environment variables.
func LoadFrom(args []string, envs env.Provider) (Config, error) {
	cfg := NewConfig()

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	if err := cliconfig.GenerateFlags(cfg, fs); err != nil {
		return cfg, err
	}
	if err := fs.Parse(args[1:]); err != nil {
		return cfg, err
	}
	if err := cliconfig.BindFlagsAndEnvToStruct(&cfg, fs, envs, env.NewNamingConvention(ENVPrefix)); err != nil {
		return cfg, err
	}

	cfg.Normalize()
	return cfg, cfg.Validate()
}

func (c *Config) Normalize() {
	c.Etcd.Normalize()
}

func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if err := c.Etcd.Validate(); err != nil {
		errs.Append(err)
	}
	if c.EtcdConnectTimeout <= 0 {
		errs.Append(errors.Errorf(`etcd connect timeout must be positive time.Duration, found "%v"`, c.EtcdConnectTimeout))
	}
	return errs.ErrorOrNil()
}
