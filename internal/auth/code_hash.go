package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashCode hashes a verification code with the configured cost.
func HashCode(code string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CodeMatches reports whether plain is the code behind hashed. Errors other than a
// mismatch, such as a malformed hash, are returned.
func CodeMatches(hashed, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
