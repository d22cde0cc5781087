package identity

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/goliatone/go-errors"
)

const codeDigits = "0123456789"

// NumericCodeGenerator issues fixed-length numeric one-time codes. Codes are
// single use: the orchestrating service invalidates a stored code in the same
// update that consumes it.
type NumericCodeGenerator struct {
	length int
}

var _ CodeGenerator = (*NumericCodeGenerator)(nil)

// NewNumericCodeGenerator returns a generator producing codes of the given
// length. Lengths below 4 are raised to the 6-character default.
func NewNumericCodeGenerator(length int) *NumericCodeGenerator {
	if length < 4 {
		length = 6
	}
	return &NumericCodeGenerator{length: length}
}

// Generate returns a new random numeric code.
func (g *NumericCodeGenerator) Generate() (string, error) {
	out := make([]byte, 0, g.length)
	raw := make([]byte, g.length)

	for len(out) < g.length {
		if _, err := rand.Read(raw); err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate one-time code")
		}

		for _, b := range raw {
			digit, ok := digitFromByte(b)
			if !ok {
				continue
			}
			out = append(out, digit)
			if len(out) == g.length {
				break
			}
		}
	}

	return string(out), nil
}

// digitFromByte maps a random byte onto a digit. Bytes past the largest
// multiple of ten are rejected so every digit stays equally likely.
func digitFromByte(b byte) (byte, bool) {
	limit := len(codeDigits) * (256 / len(codeDigits))
	if int(b) >= limit {
		return 0, false
	}
	return codeDigits[int(b)%len(codeDigits)], true
}

// Matches compares a candidate against the stored code in constant time.
// Empty stored codes never match; a consumed code cannot be replayed.
func (g *NumericCodeGenerator) Matches(candidate, stored string) bool {
	if stored == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}
