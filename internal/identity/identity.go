package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// User is the identity attached to every request. Token issuance lives
// outside this service; we only verify.
type User struct {
	ID       int64
	Username string
	GameName string
}

var ErrUnauthenticated = errors.New("authentication required")

// Provider resolves a bearer credential to a stable user identity.
type Provider interface {
	Authenticate(token string) (User, error)
}

type jwtProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) Provider {
	return &jwtProvider{secret: []byte(secret)}
}

func (p *jwtProvider) Authenticate(token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return User{}, ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, ErrUnauthenticated
	}
	userID, ok := numericClaim(claims, "user_id")
	if !ok || userID <= 0 {
		return User{}, ErrUnauthenticated
	}
	return User{
		ID:       userID,
		Username: stringClaim(claims, "username"),
		GameName: stringClaim(claims, "game_name"),
	}, nil
}

func numericClaim(claims jwt.MapClaims, key string) (int64, bool) {
	raw, ok := claims[key]
	if !ok {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return int64(value), true
	case int64:
		return value, true
	default:
		return 0, false
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}

// Static is a fixed-token provider for tests.
type Static map[string]User

func (s Static) Authenticate(token string) (User, error) {
	user, ok := s[token]
	if !ok {
		return User{}, ErrUnauthenticated
	}
	return user, nil
}
