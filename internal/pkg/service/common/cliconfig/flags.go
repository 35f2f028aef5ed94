package cliconfig

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// GenerateFlags generates flags from the config structure to the FlagSet.
// Each field tagged by the "mapstructure" tag is mapped to one flag.
// The config parameter can be a structure or a pointer to a structure.
// Field can optionally have a "usage" tag.
// Field value will be set as a default value if it is not zero.
// Only scalar fields and nested structures are mapped, other field types are skipped.
// Inspired by: https://stackoverflow.com/a/72893101
func GenerateFlags(config any, fs *pflag.FlagSet) error {
	return flagsFromStruct(config, fs, nil)
}

func flagsFromStruct(config any, fs *pflag.FlagSet, parents []string) error {
	structValue := reflect.ValueOf(config)
	if structValue.Kind() == reflect.Pointer {
		structValue = structValue.Elem()
	}

	if structValue.Kind() != reflect.Struct {
		return errors.Errorf(`type "%s" is not a struct or a pointer to a struct, it cannot be mapped to the FlagSet`, structValue.Type().String())
	}

	structType := structValue.Type()
	for i := 0; i < structType.NumField(); i++ {
		fieldType := structType.Field(i)
		fieldValue := structValue.Field(i)

		tagValue, found := fieldType.Tag.Lookup("mapstructure")
		if !found {
			continue
		}

		// An embedded struct with the "squash" option is mapped to the parent level.
		partName, tagOpts, _ := strings.Cut(tagValue, ",")
		if partName == "" {
			if strings.Contains(tagOpts, "squash") && fieldValue.Kind() == reflect.Struct {
				if err := flagsFromStruct(fieldValue.Interface(), fs, parents); err != nil {
					return err
				}
			}
			continue
		}

		fieldPath := append(parents, partName)
		flagName := strings.Join(fieldPath, ".")
		usage := fieldType.Tag.Get("usage")

		switch fieldValue.Kind() {
		case reflect.String:
			def, _ := fieldValue.Interface().(string)
			fs.String(flagName, def, usage)
		case reflect.Int:
			def, _ := fieldValue.Interface().(int)
			fs.Int(flagName, def, usage)
		case reflect.Float64:
			def, _ := fieldValue.Interface().(float64)
			fs.Float64(flagName, def, usage)
		case reflect.Bool:
			def, _ := fieldValue.Interface().(bool)
			fs.Bool(flagName, def, usage)
		case reflect.Int64:
			if fieldType.Type == durationType {
				def, _ := fieldValue.Interface().(time.Duration)
				fs.Duration(flagName, def, usage)
			} else {
				def, _ := fieldValue.Interface().(int64)
				fs.Int64(flagName, def, usage)
			}
		case reflect.Struct:
			if err := flagsFromStruct(fieldValue.Interface(), fs, append([]string{}, fieldPath...)); err != nil {
				return err
			}
		default:
			// Other field types cannot be mapped to a flag.
		}
	}

	return nil
}
