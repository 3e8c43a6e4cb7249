package pairing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
)

// Code is the short string both operators share out-of-band to meet at the relay.
type Code string

var ErrInvalidCode = errors.New("code must be at least 6 characters long and contain only letters, digits and hyphens")

// ErrMissingCode is returned when the receiver has no code from a flag or the environment.
var ErrMissingCode = errors.New("no code provided: pass --code or set DX_CODE")

var codePattern = regexp.MustCompile(`^[A-Za-z0-9-]{6,}$`)

// Role is fixed for the lifetime of the process.
type Role int

const (
	Sender Role = iota
	Receiver
)

func (r Role) String() string {
	switch r {
	case Sender:
		return "sender"
	case Receiver:
		return "receiver"
	default:
		return "unknown"
	}
}

// Validate reports whether code is an acceptable pairing code.
func Validate(code string) error {
	if !codePattern.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return nil
}

// Generate returns a fresh code in the ddd-dddd-ddd form.
func Generate() Code {
	digits := make([]byte, 10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return Code(fmt.Sprintf("%s-%s-%s", digits[:3], digits[3:7], digits[7:]))
}

// Resolve picks the code for a role. An explicit code wins over the configured
// default; the sender falls back to a generated code, the receiver fails.
func Resolve(explicit, fallback string, role Role) (Code, error) {
	for _, candidate := range []string{explicit, fallback} {
		if candidate == "" {
			continue
		}
		if err := Validate(candidate); err != nil {
			return "", err
		}
		return Code(candidate), nil
	}
	if role == Sender {
		return Generate(), nil
	}
	return "", ErrMissingCode
}
