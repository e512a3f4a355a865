package httpremote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/optisync/internal/clock"
)

// Issuer is the iss claim of self-issued tokens.
const Issuer = "optisync"

// JWTSource issues HS256 bearer tokens for one subject and reuses each
// token until it is within a minute of expiring.
type JWTSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
	clock   clock.Clock

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewJWTSource creates a token source. A nil clock means clock.Real.
func NewJWTSource(secret, subject string, ttl time.Duration, c clock.Clock) *JWTSource {
	if c == nil {
		c = clock.Real{}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTSource{secret: []byte(secret), subject: subject, ttl: ttl, clock: c}
}

// Token returns a valid token. It satisfies TokenFunc.
func (s *JWTSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.token != "" && now.Add(time.Minute).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.token, s.expires = signed, expires
	return signed, nil
}

// ParseToken validates a token issued with secret and returns its subject.
func ParseToken(secret, token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("missing sub in token")
	}
	return claims.Subject, nil
}
