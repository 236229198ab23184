package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const linkIssuer = "eco-moderation"

// ExpiringSigner issues HS256 tokens scoped to one record that stop verifying after maxAge
type ExpiringSigner struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewExpiringSigner(secret string, maxAge time.Duration) (*ExpiringSigner, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("token max age must be positive, got %s", maxAge)
	}
	return &ExpiringSigner{secret: []byte(secret), maxAge: maxAge, now: time.Now}, nil
}

func (s *ExpiringSigner) Sign(recordID string) (string, error) {
	issued := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    linkIssuer,
		Subject:   recordID,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(s.maxAge)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign action token: %w", err)
	}
	return signed, nil
}

func (s *ExpiringSigner) Verify(recordID, token string) bool {
	return s.Parse(recordID, token) == nil
}

// Parse validates token for recordID and reports why it was rejected
func (s *ExpiringSigner) Parse(recordID, token string) error {
	if recordID == "" || token == "" {
		return jwt.ErrTokenMalformed
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(linkIssuer),
		jwt.WithSubject(recordID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("action token is not valid")
	}
	return nil
}
