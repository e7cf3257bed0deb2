// Package normalizers provides identity field normalization for lead resolution
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone canonicalizes a Brazilian phone number into country-code
// digit form. The function is idempotent: applying it to its own output
// returns the same value.
//
// Rules, in order:
//   - Strip every non-digit character.
//   - Strip leading zeros (carrier trunk prefix).
//   - 13 digits starting with "555": the 55 country code was stacked onto
//     a number whose area code starts with 5, drop the extra leading 5.
//   - 10 or 11 digits not starting with "55": local number, prefix "55".
//   - Anything else is left as-is rather than guessed at.
//
// An empty result means the input carried no usable digits and the
// caller should store null.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	digits = strings.TrimLeft(digits, "0")

	if len(digits) == 13 && strings.HasPrefix(digits, "555") {
		return digits[1:]
	}

	if (len(digits) == 10 || len(digits) == 11) && !strings.HasPrefix(digits, "55") {
		return "55" + digits
	}

	return digits
}
