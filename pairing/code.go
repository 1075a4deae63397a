package pairing

import (
	"crypto/rand"
	"io"
	"strings"
)

const (
	CodeLength = 6
	// 32 symbols without 0/O and 1/I
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateCode draws CodeLength symbols from r, crypto/rand when r is nil.
// The alphabet has 32 symbols so the low five bits of a byte map without bias.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}

	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[b&31]
	}
	return string(buf), nil
}

// NormalizeCode uppercases and trims user input and checks its shape.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", ErrInvalidCode
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}

// DerivePairId is independent of which member created the code.
func DerivePairId(a string, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}
