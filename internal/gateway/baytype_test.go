package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferBayType(t *testing.T) {
	prefixes := map[string]string{
		"wip":      "W",
		"complete": "C",
		"oversize": "OS",
	}

	testCases := []struct {
		name     string
		bayName  string
		expected BayType
	}{
		{"wip prefix", "W12", BayTypeWIP},
		{"complete prefix", "C3", BayTypeComplete},
		{"oversize prefix", "OS1", BayTypeOversize},
		{"no prefix match", "Shelf 9", BayTypeUnknown},
		{"empty name", "", BayTypeUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, InferBayType(prefixes, tc.bayName))
		})
	}
}

func TestInferBayTypeLongestPrefixWins(t *testing.T) {
	// "OS" and "O" overlap; the longer prefix must decide.
	prefixes := map[string]string{
		"complete": "O",
		"oversize": "OS",
	}
	assert.Equal(t, BayTypeOversize, InferBayType(prefixes, "OS4"))
	assert.Equal(t, BayTypeComplete, InferBayType(prefixes, "O4"))
}

func TestInferBayTypeIgnoresEmptyPrefix(t *testing.T) {
	prefixes := map[string]string{"wip": ""}
	assert.Equal(t, BayTypeUnknown, InferBayType(prefixes, "W1"))
}
