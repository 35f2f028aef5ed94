// Package cliconfig provides mapping of a configuration structure to flags and environment variables.
package cliconfig

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
)

// SetBy describes the source of a configuration value.
type SetBy int

const (
	SetByUnknown SetBy = iota
	SetByFlag
	SetByFlagDefault
	SetByEnv
)

// BindFlagsAndEnvToStruct binds flags and environment variables to the target configuration structure.
// Priority: 1. flag, 2. ENV, 3. flag default value.
func BindFlagsAndEnvToStruct(target any, fs *pflag.FlagSet, envs env.Provider, envNaming *env.NamingConvention) error {
	v := viper.New()
	if _, err := BindFlagsAndEnvToViper(v, fs, envs, envNaming); err != nil {
		return err
	}
	return v.Unmarshal(target, func(config *mapstructure.DecoderConfig) {
		config.WeaklyTypedInput = true
	})
}

// BindFlagsAndEnvToViper binds flags and environment variables to the Viper instance.
// Priority: 1. flag, 2. ENV, 3. flag default value.
// The source of each value is returned in the map, keyed by the flag name.
func BindFlagsAndEnvToViper(v *viper.Viper, fs *pflag.FlagSet, envs env.Provider, envNaming *env.NamingConvention) (map[string]SetBy, error) {
	setBy := make(map[string]SetBy)
	fs.VisitAll(func(flag *pflag.Flag) {
		envName := envNaming.FlagToEnv(flag.Name)
		envValue, envFound := envs.Lookup(envName)
		switch {
		case flag.Changed:
			v.Set(flag.Name, flagValue(fs, flag))
			setBy[flag.Name] = SetByFlag
		case envFound:
			v.Set(flag.Name, envValue)
			setBy[flag.Name] = SetByEnv
		default:
			v.Set(flag.Name, flagValue(fs, flag))
			setBy[flag.Name] = SetByFlagDefault
		}
	})
	return setBy, nil
}

// flagValue gets a typed value for common scalar types, other types are converted to a string.
func flagValue(fs *pflag.FlagSet, flag *pflag.Flag) any {
	switch flag.Value.Type() {
	case "int":
		value, _ := fs.GetInt(flag.Name)
		return value
	case "bool":
		value, _ := fs.GetBool(flag.Name)
		return value
	default:
		return flag.Value.String()
	}
}
