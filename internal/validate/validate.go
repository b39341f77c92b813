// Package validate contains the validation logic shared by sqigl's
// commands.
//
// It uses the `validator` library to enforce rules (like required fields
// or pattern matching) defined in struct tags, the same way the rest of
// the ecosystem does it — just with no HTTP request binding, since sqigl
// has no request/response surface to bind from.
package validate

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var instance = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("semverpre", isSemverPrerelease); err != nil {
		panic(err)
	}
	return v
}

// isSemverPrerelease backs the "semverpre" tag: the value must be a valid
// semver prerelease identifier, i.e. dot-separated alphanumeric-or-hyphen
// components, per https://semver.org/#spec-item-9. A feature title becomes
// a prerelease tag verbatim, so it must satisfy this grammar before it is
// ever handed to the version parser.
func isSemverPrerelease(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	for _, component := range splitDot(s) {
		if component == "" || !isAlphanumericOrHyphen(component) {
			return false
		}
	}
	return true
}

func splitDot(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func isAlphanumericOrHyphen(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// FeatureTitle validates a title destined to become a feature version's
// prerelease tag.
type FeatureTitle struct {
	Title string `validate:"required,semverpre"`
}

// Struct validates v against its `validate` tags, returning a single
// readable error summarizing the first failing field.
func Struct(v any) error {
	if err := instance.Struct(v); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q validation", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}
