package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

const (
	userIdKey = "user_id"

	// TokenCookie is where browser sessions keep their access token. jwtauth
	// reads the same cookie name when no Authorization header is sent.
	TokenCookie = "jwt"

	userTokenExpiry = 12 * time.Hour
)

type JwtManager struct {
	auth *jwtauth.JWTAuth
}

func NewJwtManager(secret []byte) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil)}
}

// Verifier reads the token from the Authorization header or the jwt cookie
// and stores the verification result in the request context.
func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(m.auth)
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return jwtauth.Authenticator(m.auth)
}

func (m *JwtManager) createToken(key, value string, exp time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(exp)
	claims := map[string]interface{}{
		key:   value,
		"exp": expiresAt,
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", time.Time{}, fmt.Errorf("error generating access token: %w", err)
	}
	return token, expiresAt, nil
}

func (m *JwtManager) CreateUserJwt(userId uuid.UUID) (string, time.Time, error) {
	return m.createToken(userIdKey, userId.String(), userTokenExpiry)
}

func ValueFromContext(r *http.Request, key string) (string, error) {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", fmt.Errorf("error retrieving auth claims: %w", err)
	}
	if token == nil {
		return "", ErrUnauthenticated
	}

	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}
