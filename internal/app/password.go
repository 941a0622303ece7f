package app

import (
	"errors"
	"fmt"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost factor used for every stored hash.
const PasswordCost = 10

// dummyPasswordHash is compared against when a login names an unknown email,
// so that path pays the same bcrypt cost as a real mismatch.
var dummyPasswordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("budgetlink-unknown-user"), PasswordCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// HashPassword returns a salted bcrypt hash of the plaintext password.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password must be at most 72 bytes", domain.ErrValidation)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
func VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
