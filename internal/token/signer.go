package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var ErrEmptySecret = errors.New("token secret is empty")

// Signer issues and checks the tokens carried by admin action links
type Signer interface {
	Sign(recordID string) (string, error)
	Verify(recordID, token string) bool
}

// DigestSigner derives a stable token as hex(sha256(recordID + secret)).
// Tokens never expire and can be reused; a link stays valid as long as the secret does.
type DigestSigner struct {
	secret string
}

func NewDigestSigner(secret string) (*DigestSigner, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &DigestSigner{secret: secret}, nil
}

func (s *DigestSigner) Sign(recordID string) (string, error) {
	return s.digest(recordID), nil
}

func (s *DigestSigner) Verify(recordID, token string) bool {
	if recordID == "" || token == "" {
		return false
	}
	expected := s.digest(recordID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

func (s *DigestSigner) digest(recordID string) string {
	sum := sha256.Sum256([]byte(recordID + s.secret))
	return hex.EncodeToString(sum[:])
}
