package shared

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"hotel_booking/internal/domain"
)

// NewValidator returns a validator that reports json field names and knows the "notblank" rule.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// rejects whitespace-only strings
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true
		}
		return strings.TrimSpace(str) != ""
	})
	return v
}

// Validate runs struct validation and converts the first failure into a domain.ValidationError.
func Validate(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return domain.Invalid("", "invalid request")
	}
	fe := ve[0]
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return domain.Invalid(field, "is required")
	case "notblank":
		return domain.Invalid(field, "cannot be blank")
	case "email":
		return domain.Invalid(field, "must be a valid email address")
	case "datetime":
		return domain.Invalid(field, "must be a YYYY-MM-DD date")
	case "numeric":
		return domain.Invalid(field, "must be a decimal number")
	case "min", "gte", "gt":
		return domain.Invalid(field, "must be at least %s", minParam(fe))
	case "max", "lte":
		return domain.Invalid(field, "must be at most %s", fe.Param())
	case "len":
		return domain.Invalid(field, "must be exactly %s characters", fe.Param())
	}
	return domain.Invalid(field, "is invalid")
}

func minParam(fe validator.FieldError) string {
	if fe.Tag() == "gt" {
		return "1"
	}
	return fe.Param()
}

// fieldPath drops the root struct and embedded struct names: "BookingRequest.QuoteRequest.rooms[0].adults" -> "rooms[0].adults".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	out := parts[:0]
	for _, p := range parts[1:] {
		if p != "" && unicode.IsUpper(rune(p[0])) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}
