package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"formatted mobile with country code", "+55 (11) 98765-4321", "5511987654321"},
		{"bare 11 digit mobile", "11987654321", "5511987654321"},
		{"bare 10 digit landline", "1133334444", "551133334444"},
		{"already canonical", "5511987654321", "5511987654321"},
		{"trunk zero prefix", "011987654321", "5511987654321"},
		{"double zero international prefix", "005511987654321", "5511987654321"},
		{"stacked country code on area code 51", "5551987654321", "551987654321"},
		{"double stacked country code", "5555987654321", "555987654321"},
		{"too short left alone", "4321", "4321"},
		{"too long left alone", "55119876543210", "55119876543210"},
		{"letters stripped", "tel: 11 98765-4321", "5511987654321"},
		{"empty input", "", ""},
		{"no digits at all", "n/a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{
		"+55 (11) 98765-4321",
		"11987654321",
		"1133334444",
		"5551987654321",
		"4321",
		"",
	}

	for _, input := range inputs {
		once := NormalizePhone(input)
		assert.Equal(t, once, NormalizePhone(once), "not idempotent for %q", input)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "maria.silva@example.com", NormalizeEmail("  Maria.Silva@Example.COM "))
	assert.Equal(t, "joao@test.com.br", NormalizeEmail("joao@test.com.br"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestRegistry(t *testing.T) {
	fn, ok := Get("nphone")
	assert.True(t, ok)
	assert.Equal(t, "5511987654321", fn("11 98765-4321"))

	_, ok = Get("missing")
	assert.False(t, ok)

	// Unknown normalizer passes the value through unchanged
	assert.Equal(t, "ABC", Apply("ABC", "missing"))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "foo@bar.com", ApplyChain("  FOO@BAR.COM ", "trim", "lowercase"))
	assert.Equal(t, "1198765", ApplyChain("(11) 9-8765", "digits_only"))
}
