package otp

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^\d{6}$`)

func TestGenerate_Format(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, code)
	}
}

func TestGenerate_UsesEveryDigit(t *testing.T) {
	seen := map[rune]bool{}
	for i := 0; i < 200 && len(seen) < 10; i++ {
		code, err := Generate()
		require.NoError(t, err)
		for _, r := range code {
			seen[r] = true
		}
	}
	assert.Len(t, seen, 10)
}
