// Package validation adapts go-playground/validator to echo and reports
// failures as typed application errors.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/service"
)

var otpCode = regexp.MustCompile(`^\d{6}$`)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New registers the custom tags payment_method, attachment_type and
// otp_code. Field names in errors follow the json tag.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		}
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("payment_method", validPaymentMethod)
	_ = v.RegisterValidation("attachment_type", func(fl validator.FieldLevel) bool {
		return service.ValidAttachmentType(fl.Field().String())
	})
	_ = v.RegisterValidation("otp_code", func(fl validator.FieldLevel) bool {
		return otpCode.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Validate checks i and returns the first failure as an *apperr.Error.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return apperr.Validation("body", err.Error())
	}
	fe := fields[0]
	if fe.Tag() == "required" {
		return apperr.MissingField(fe.Field())
	}
	return apperr.Validation(fe.Field(), reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "otp_code":
		return "must be exactly 6 digits"
	case "payment_method":
		return "unsupported payment method"
	case "attachment_type":
		return "unsupported attachment type"
	}
	return "failed " + fe.Tag()
}

func validPaymentMethod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case model.MethodCreditCard, model.MethodGCash, model.MethodPayMaya:
		return true
	}
	return false
}
