package users

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes        = 16
	digestBytes      = 64
	digestIterations = 100_000
)

// HashPassword returns a hex digest and the fresh hex salt it was derived with.
func HashPassword(password string) (digest, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("users: generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)
	return derive(password, salt), salt, nil
}

// CheckPassword recomputes the digest with the stored salt and compares in
// constant time.
func CheckPassword(p *Principal, password string) bool {
	if p == nil || p.Digest == "" || p.Salt == "" {
		return false
	}
	want, err := hex.DecodeString(p.Digest)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(derive(password, p.Salt))
	return subtle.ConstantTimeCompare(want, got) == 1
}

// SetPassword replaces the digest and salt of p.
func (p *Principal) SetPassword(password string) error {
	digest, salt, err := HashPassword(password)
	if err != nil {
		return err
	}
	p.Digest, p.Salt = digest, salt
	return nil
}

func derive(password, salt string) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(salt), digestIterations, digestBytes, sha512.New))
}
