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
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "keeps order", input: []string{"keep", "revoke"}, expected: []string{"keep", "revoke"}},
		{name: "trims and dedupes", input: []string{" revoke ", "keep", "revoke", "", "  "}, expected: []string{"revoke", "keep"}},
		{name: "case sensitive", input: []string{"Keep", "keep"}, expected: []string{"Keep", "keep"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList("", ","))
	assert.Nil(t, SplitList(" , ,", ","))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, SplitList("k1:9092, k2:9092,k1:9092", ","))
}
