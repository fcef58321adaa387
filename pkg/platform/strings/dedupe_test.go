package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  Users  ", "referral  ", "  patient"},
			expected: []string{"Users", "referral", "patient"},
		},
		{
			name:     "drops duplicates preserving first-seen order",
			input:    []string{"Users", "referral", "Users", "patient", "referral"},
			expected: []string{"Users", "referral", "patient"},
		},
		{
			name:     "drops empty and blank elements",
			input:    []string{"Users", "", "  ", "referral"},
			expected: []string{"Users", "referral"},
		},
		{
			name:     "keeps case distinctions",
			input:    []string{"Users", "users", "USERS"},
			expected: []string{"Users", "users", "USERS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "folds case before deduping",
			input:    []string{"Create", "create", "CREATE"},
			expected: []string{"create"},
		},
		{
			name:     "trims, folds, and dedupes",
			input:    []string{"  DELETE ", "update", "Delete", "UPDATE"},
			expected: []string{"delete", "update"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}
