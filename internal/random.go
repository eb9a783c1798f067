package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// NewSMSCode generates a numeric verification code of the given length
// using crypto/rand. Leading zeros are allowed.
func NewSMSCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid sms code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
