package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"github.com/rkvalley/campus/internal/model"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	requiredTag  = "required"
	requiredText = "this field is required"
)

// Instantiate the validator for use.
func init() {
	validate = validator.New()

	// Register the english error messages for validation errors.
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomTranslation(requiredTag, requiredText, true)
	validate.RegisterStructValidation(registerRequestValidation, RegisterRequest{})
	validate.RegisterStructValidation(userRequestValidation, UserRequest{})
}

// registerCustomTranslation registers a custom translation for the specified validation tag.
func registerCustomTranslation(tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Students belong to a class; the backend rejects them without one.
func registerRequestValidation(sl validator.StructLevel) {
	r := sl.Current().Interface().(RegisterRequest)
	if r.Role == model.RoleStudent && r.ClassName == "" {
		sl.ReportError(r.ClassName, "className", "ClassName", requiredTag, "")
	}
}

func userRequestValidation(sl validator.StructLevel) {
	r := sl.Current().Interface().(UserRequest)
	if r.Role == model.RoleStudent && r.ClassName == "" {
		sl.ReportError(r.ClassName, "className", "ClassName", requiredTag, "")
	}
}

// ErrInvalidRequest is matched by every *ValidationError.
var ErrInvalidRequest = errors.New("api: invalid request")

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError lists every field a request failed on. Nothing is sent to
// the backend when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Error))
	}
	return ErrInvalidRequest.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap makes errors.Is(err, ErrInvalidRequest) true.
func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// Field returns the message for one field, or "".
func (e *ValidationError) Field(name string) string {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Error
		}
	}
	return ""
}

func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, "api: validate request")
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return &ValidationError{Fields: fields}
}
