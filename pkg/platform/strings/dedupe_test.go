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
			name:     "single condition",
			input:    []string{"medical exam required"},
			expected: []string{"medical exam required"},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  medical exam required ", "renewal form  ", " proof of income"},
			expected: []string{"medical exam required", "renewal form", "proof of income"},
		},
		{
			name: "drops the condition two rules both raised",
			input: []string{
				"medical exam required",
				"waiting period applies",
				"medical exam required",
			},
			expected: []string{"medical exam required", "waiting period applies"},
		},
		{
			name:     "removes blank entries",
			input:    []string{"renewal form", "", "  ", "medical exam"},
			expected: []string{"renewal form", "medical exam"},
		},
		{
			name:     "preserves first-seen order",
			input:    []string{"renewal form", "medical exam", "renewal form", "proof of income"},
			expected: []string{"renewal form", "medical exam", "proof of income"},
		},
		{
			name:     "case is significant",
			input:    []string{"Renewal Form", "renewal form"},
			expected: []string{"Renewal Form", "renewal form"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrim(tt.input)
			assert.Equal(t, tt.expected, result)
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
			name:     "folds case before deduplicating",
			input:    []string{"Nurse", "nurse", "NURSE"},
			expected: []string{"nurse"},
		},
		{
			name:     "trims and folds operator-entered occupations",
			input:    []string{"  Taxi Driver ", "miner", "taxi driver", "MINER"},
			expected: []string{"taxi driver", "miner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrimLower(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
