package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Length is the number of digits in a confirmation code.
const Length = 6

var ten = big.NewInt(10)

// Generate returns a Length-digit numeric code. Each digit is drawn
// independently and uniformly from 0-9, so leading zeros are possible.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
