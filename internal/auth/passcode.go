package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadPasscode is returned when the clinic passcode does not match.
var ErrBadPasscode = errors.New("invalid clinic passcode")

// HashPasscode produces the bcrypt hash to store in configuration.
func HashPasscode(passcode string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPasscode checks the shared clinic passcode against the configured
// hash. An empty configured hash disables the check entirely, which is the
// development default.
func VerifyPasscode(configuredHash, passcode string) error {
	if configuredHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(configuredHash), []byte(passcode)); err != nil {
		return ErrBadPasscode
	}
	return nil
}
