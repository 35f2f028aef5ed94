// Package validator provides validation of structures and values based on rules in the "validate" tag.
package validator

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

const anonymousField = "__anonymous__"

type Validator interface {
	Validate(ctx context.Context, value any) error
	ValidateValue(value any, tag string) error
	ValidateCtx(ctx context.Context, value any, tag string, namespace string) error
	RegisterRule(rules ...Rule)
}

// Rule is a custom validation rule.
// Func or FuncCtx must be set.
// ErrorMsg or ErrorMsgFunc is used to compose the error message if the validation fails.
type Rule struct {
	Tag          string
	Func         validator.Func
	FuncCtx      validator.FuncCtx
	ErrorMsg     string
	ErrorMsgFunc ErrorMsgFunc
}

type ErrorMsgFunc func(fe validator.FieldError) string

type wrapper struct {
	validator  *validator.Validate
	translator ut.Translator
}

// New creates a validator with the default and the custom rules.
func New(rules ...Rule) Validator {
	v := &wrapper{validator: validator.New()}

	// Register the english translator
	enLocale := en.New()
	universal := ut.New(enLocale, enLocale)
	translator, found := universal.GetTranslator("en")
	if !found {
		panic(errors.New(`translator "en" not found`))
	}
	v.translator = translator
	if err := enTranslation.RegisterDefaultTranslations(v.validator, v.translator); err != nil {
		panic(err)
	}

	// Use a name from the field tags in the error namespace
	v.validator.RegisterTagNameFunc(func(field reflect.StructField) string {
		if field.Anonymous {
			return anonymousField
		}
		for _, tag := range []string{"json", "yaml", "mapstructure"} {
			name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return ""
	})

	v.RegisterRule(defaultRules()...)
	v.RegisterRule(rules...)
	return v
}

// Validate the value, the rules are defined by the "validate" field tags.
func (v *wrapper) Validate(ctx context.Context, value any) error {
	return v.ValidateCtx(ctx, value, "dive", "")
}

// ValidateValue validates a single value by the tag, for example "required".
func (v *wrapper) ValidateValue(value any, tag string) error {
	return v.ValidateCtx(context.Background(), value, tag, "")
}

// ValidateCtx validates the value, each error message is prefixed by the full field path and the namespace.
func (v *wrapper) ValidateCtx(ctx context.Context, value any, tag string, namespace string) error {
	// A structure is validated by the field tags, other values by the tag parameter
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	rootIsStruct := rv.Kind() == reflect.Struct

	var err error
	if rootIsStruct {
		err = v.validator.StructCtx(ctx, value)
	} else {
		err = v.validator.VarCtx(ctx, value, tag)
	}

	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.processErrors(validationErrs, namespace, rootIsStruct)
		}
		return err
	}
	return nil
}

func (v *wrapper) RegisterRule(rules ...Rule) {
	for _, rule := range rules {
		switch {
		case rule.FuncCtx != nil:
			if err := v.validator.RegisterValidationCtx(rule.Tag, rule.FuncCtx); err != nil {
				panic(err)
			}
		case rule.Func != nil:
			if err := v.validator.RegisterValidation(rule.Tag, rule.Func); err != nil {
				panic(err)
			}
		default:
			panic(errors.Errorf(`validation rule "%s" is invalid: Func or FuncCtx must be set`, rule.Tag))
		}

		switch {
		case rule.ErrorMsgFunc != nil:
			v.registerErrorMessage(rule.Tag, rule.ErrorMsgFunc)
		case rule.ErrorMsg != "":
			msg := rule.ErrorMsg
			v.registerErrorMessage(rule.Tag, func(validator.FieldError) string { return msg })
		}
	}
}

func (v *wrapper) registerErrorMessage(tag string, msgFunc ErrorMsgFunc) {
	registerFn := func(ut.Translator) error { return nil }
	translationFn := func(_ ut.Translator, fe validator.FieldError) string { return msgFunc(fe) }
	if err := v.validator.RegisterTranslation(tag, v.translator, registerFn, translationFn); err != nil {
		panic(err)
	}
}

// processErrors converts the validation errors to a MultiError.
// Each message is prefixed by the full field path instead of the plain field name.
func (v *wrapper) processErrors(validationErrs validator.ValidationErrors, namespace string, rootIsStruct bool) error {
	errs := errors.NewMultiError()
	for _, e := range validationErrs {
		path := e.Namespace()
		if rootIsStruct {
			// Remove the root struct name from the path
			if _, after, found := strings.Cut(path, "."); found {
				path = after
			} else {
				path = ""
			}
		}

		// Remove anonymous fields from the path
		path = strings.ReplaceAll(path, anonymousField+".", "")

		// Prepend the custom namespace
		switch {
		case path == "":
			path = namespace
		case namespace != "":
			path = namespace + "." + path
		}

		msg := e.Translate(v.translator)
		if path != "" {
			msg = `"` + path + `" ` + strings.TrimPrefix(msg, e.Field()+" ")
		}
		errs.Append(errors.New(strings.TrimSpace(msg)))
	}
	return errs.ErrorOrNil()
}

func defaultRules() []Rule {
	return []Rule{
		{
			Tag: "required_not_empty",
			Func: func(fl validator.FieldLevel) bool {
				field := fl.Field()
				if !field.IsValid() {
					return false
				}
				switch field.Kind() {
				case reflect.Slice, reflect.Map, reflect.Array:
					return field.Len() > 0
				default:
					return !field.IsZero()
				}
			},
			ErrorMsg: "is a required field",
		},
	}
}
