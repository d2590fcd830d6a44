package auth

import "golang.org/x/crypto/bcrypt"

// MinPasswordLength is the shortest password accepted at signup and reset.
const MinPasswordLength = 8

// HashPassword returns the bcrypt digest of password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
