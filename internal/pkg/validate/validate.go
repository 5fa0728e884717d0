package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Custom tags are registered in init() before the first
// call to Struct.
var v = validator.New()

var (
	phoneStrip   = regexp.MustCompile(`[\s\-()]`)
	phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)
)

func init() {
	// Report json field names so 400 bodies match the request payload.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return Password(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return Phone(fl.Field().String())
	})
}

// FieldErrors maps a request field to a human-readable problem.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", k, fe[k]))
	}
	return strings.Join(msgs, "; ")
}

// Struct validates the given struct using its validate tags.
// Returns FieldErrors or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		out := make(FieldErrors, len(ve))
		for _, fe := range ve {
			out[fe.Field()] = message(fe)
		}
		return out
	}
	return nil
}

// Password enforces the account password policy: 8 to 72 characters, at least
// one letter, not purely numeric. 72 is the bcrypt input limit.
func Password(pw string) error {
	if len(pw) < 8 {
		return errors.New("must be at least 8 characters")
	}
	if len(pw) > 72 {
		return errors.New("must be at most 72 characters")
	}
	hasLetter := false
	for _, r := range pw {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return errors.New("must contain at least one letter")
	}
	return nil
}

// Phone accepts 10 to 15 digits with an optional leading plus. Spaces, dashes
// and parentheses are ignored.
func Phone(s string) bool {
	return phonePattern.MatchString(phoneStrip.ReplaceAllString(s, ""))
}

// NormalizePhone strips the formatting characters Phone ignores.
func NormalizePhone(s string) string {
	return phoneStrip.ReplaceAllString(s, "")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "password":
		if s, ok := fe.Value().(string); ok {
			if err := Password(s); err != nil {
				return err.Error()
			}
		}
		return "is too weak"
	case "phone":
		return "must contain 10 to 15 digits"
	case "datetime":
		return "must use format YYYY-MM-DD"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "len", "numeric":
		return "is malformed"
	default:
		return fmt.Sprintf("failed '%s'", fe.Tag())
	}
}
