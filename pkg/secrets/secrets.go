package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	dErrors "tripkey/pkg/domain-errors"
)

// PINLength is the number of decimal digits in a trip PIN.
const PINLength = 6

var pinSpace = big.NewInt(1_000_000)

// GeneratePIN returns a uniformly random 6-digit PIN, zero-padded.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, pinSpace)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate pin")
	}
	return fmt.Sprintf("%0*d", PINLength, n.Int64()), nil
}

// IsPIN reports whether s is exactly six ASCII digits.
func IsPIN(s string) bool {
	if len(s) != PINLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// HashPIN creates a salted bcrypt hash of the PIN. A cost of zero uses bcrypt.DefaultCost.
func HashPIN(pin string, cost int) (string, error) {
	if !IsPIN(pin) {
		return "", dErrors.New(dErrors.CodeValidation, "pin must be exactly 6 digits")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash pin")
	}
	return string(hashed), nil
}

// VerifyPIN checks a plaintext PIN against a bcrypt hash.
func VerifyPIN(pin, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.NewWithReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidPIN, "invalid pin")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify pin")
	}
	return nil
}
