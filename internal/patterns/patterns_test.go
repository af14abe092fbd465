package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuhn(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"visa test number", "4111111111111111", true},
		{"visa with spaces", "4111 1111 1111 1111", true},
		{"mastercard with dashes", "5500-0000-0000-0004", true},
		{"sequential digits", "1234 5678 9012 3456", false},
		{"too short", "411111111111", false},
		{"too long", "41111111111111111111", false},
		{"non-digit content", "4111a111b1111111", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, Luhn(tt.input))
		})
	}
}

func TestRuleTablesCompile(t *testing.T) {
	assert.NotEmpty(t, SecurityRules())
	assert.NotEmpty(t, ComplianceRules())

	for _, rule := range SecurityRules() {
		assert.NotEmpty(t, rule.Category)
		assert.Positive(t, rule.Weight)
		assert.Positive(t, rule.MaxScore)
	}
	for _, rule := range ComplianceRules() {
		assert.NotEmpty(t, rule.Regulation)
		assert.Positive(t, rule.Weight)
		assert.Positive(t, rule.MaxScore)
	}
}
