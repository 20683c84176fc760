package users

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrResetTokenInvalid is returned for tampered or expired reset tokens.
var ErrResetTokenInvalid = errors.New("users: reset token invalid")

// ResetTokens signs the principal id carried between the two reset steps,
// so the second step cannot be pointed at an arbitrary account.
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokens constructs a signer.
func NewResetTokens(secret string, ttl time.Duration) *ResetTokens {
	return &ResetTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token for principalID, bound to the current digest so it
// stops working once the password changes.
func (t *ResetTokens) Issue(principalID, digest string) string {
	exp := strconv.FormatInt(t.now().Add(t.ttl).Unix(), 10)
	body := principalID + "." + exp
	return base64.RawURLEncoding.EncodeToString([]byte(body)) + "." + t.sign(body, digest)
}

// Parse returns the principal id of a well formed, unexpired token. The
// caller must still call Verify with the stored digest.
func (t *ResetTokens) Parse(token string) (string, error) {
	encoded, _, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrResetTokenInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrResetTokenInvalid
	}
	id, exp, ok := strings.Cut(string(raw), ".")
	if !ok || id == "" {
		return "", ErrResetTokenInvalid
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || t.now().After(time.Unix(unix, 0)) {
		return "", ErrResetTokenInvalid
	}
	return id, nil
}

// Verify checks the signature of token against the stored digest.
func (t *ResetTokens) Verify(token, digest string) error {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return ErrResetTokenInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrResetTokenInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(t.sign(string(raw), digest))) {
		return ErrResetTokenInvalid
	}
	return nil
}

func (t *ResetTokens) sign(body, digest string) string {
	mac := hmac.New(sha256.New, t.secret)
	_, _ = mac.Write([]byte(body))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(digest))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
