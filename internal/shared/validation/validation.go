// Package validation runs struct-tag validation and turns the failures into
// per-field French messages keyed by the JSON field name.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
)

type FieldErrors map[string]string

const msgInvalidRequest = "Requête invalide."

var (
	once     sync.Once
	instance *validator.Validate
	ginOnce  sync.Once
)

// UseJSONNames makes gin's binding validator report JSON field names too.
func UseJSONNames() {
	ginOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(jsonName)
		}
	})
}

func validate() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(jsonName)
	})
	return instance
}

// Struct validates s and returns an invalid apperr carrying the field
// messages, or nil.
func Struct(s any) error {
	err := validate().Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Wrap(err)
	}
	return apperr.InvalidErr(msgInvalidRequest, FromValidationErrors(ve))
}

// FromBindError converts a gin bind error (JSON syntax, type mismatch or
// binding tags) into field messages.
func FromBindError(err error) FieldErrors {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return FromValidationErrors(ve)
	}
	return FieldErrors{"_": "Le corps de la requête est invalide."}
}

func FromValidationErrors(ve validator.ValidationErrors) FieldErrors {
	out := FieldErrors{}
	for _, fe := range ve {
		out[fieldKey(fe)] = messageForTag(fe.Tag(), fe.Param())
	}
	return out
}

// fieldKey drops the root struct name: "PaymentRequest.customer.phone"
// becomes "customer.phone".
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" || tag == "-" {
		return strings.ToLower(f.Name)
	}
	return tag
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required", "required_if", "required_unless":
		return "Ce champ est obligatoire."
	case "email":
		return "Adresse e-mail invalide."
	case "url":
		return "URL invalide."
	case "gte", "min":
		return "Doit être supérieur ou égal à " + param + "."
	case "lte", "max":
		return "Doit être inférieur ou égal à " + param + "."
	case "len":
		return "Doit contenir exactement " + param + " caractères."
	case "oneof":
		return "Doit être l'une des valeurs : " + param + "."
	case "uppercase":
		return "Doit être en majuscules."
	default:
		return "Valeur invalide."
	}
}
