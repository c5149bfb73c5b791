package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// UK numbers in national format: 11 digits with a leading zero.
	ukPhoneRegex = regexp.MustCompile(`^0\d{10}$`)

	// Two prefix letters, six digits, suffix A-D. Spaces are ignored.
	niNumberRegex = regexp.MustCompile(`^[A-CEGHJ-PR-TW-Z][A-CEGHJ-NPR-TW-Z]\d{6}[A-D]$`)
)

// New returns a validator with the custom rules registered and field names
// reported by their JSON names.
func New() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("uk_phone", UKPhone)
	_ = v.RegisterValidation("ni_number", NINumber)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// UKPhone validates a UK phone number in national format.
func UKPhone(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return ukPhoneRegex.MatchString(strings.ReplaceAll(val, " ", ""))
}

// NINumber validates a National Insurance number.
func NINumber(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	normalized := strings.ToUpper(strings.ReplaceAll(val, " ", ""))
	return niNumberRegex.MatchString(normalized)
}
