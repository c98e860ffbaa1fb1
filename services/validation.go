package services

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const joinCodeTag = "joincode"

var joinCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// В ошибках используем имена полей из JSON-тегов.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(joinCodeTag, func(fl validator.FieldLevel) bool {
		return joinCodePattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterTranslation(joinCodeTag, translator,
		func(ut.Translator) error { return nil },
		func(ut.Translator, validator.FieldError) string {
			return "must be 6 letters or digits"
		})
}

// NormalizeJoinCode trims and uppercases a user supplied code.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// validateStruct turns validator errors into a *ValidationError.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "", Message: err.Error()}}}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: fe.Translate(translator)})
	}
	return &ValidationError{Fields: fields}
}
