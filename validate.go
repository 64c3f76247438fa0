package session

import (
	"errors"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// PasswordPolicy rejects passwords shorter than 8 characters or missing an
// uppercase letter, lowercase letter, digit, or symbol. The same policy
// applies to registration and password reset.
func PasswordPolicy(value any) error {
	password, _ := value.(string)

	if utf8.RuneCountInString(password) < 8 {
		return errors.New("must be at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if !hasUpper {
		return errors.New("must contain an uppercase letter")
	}
	if !hasLower {
		return errors.New("must contain a lowercase letter")
	}
	if !hasDigit {
		return errors.New("must contain a digit")
	}
	if !hasSymbol {
		return errors.New("must contain a symbol")
	}

	return nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts empty values and otherwise requires a
// parseable, valid number.
func ValidatePhoneNumber(defaultRegion string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, defaultRegion)
		if err != nil {
			return errors.New("must be a valid phone number")
		}

		if !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}

		return nil
	}
}

// FormatValidationErrorToMap flattens an ozzo validation error into a
// field:message map for templates and structured responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		out["form"] = err.Error()
		return out
	}

	for field, ferr := range fieldErrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}

	return out
}
