// Package auth issues and verifies session tokens and builds the
// per-provider OAuth2 configurations used by the handshake routes.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer   = "kin"
	sessionAudience = "kin.today"
	sessionCookie   = "session_token"
	sessionTTL      = 30 * 24 * time.Hour
)

// Sessions signs and verifies the JWTs that identify logged-in users.
type Sessions struct {
	secret []byte
	now    func() time.Time
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret), now: time.Now}
}

// CreateToken issues a session token for a user id.
func (s *Sessions) CreateToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss": sessionIssuer,
		"aud": sessionAudience,
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(sessionTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// UserID extracts and verifies the session token from a request, checking
// the Authorization header, the X-Token header, then the session cookie.
func (s *Sessions) UserID(r *http.Request) (string, error) {
	tokenString := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		tokenString = strings.TrimPrefix(h, "Bearer ")
	}
	if tokenString == "" {
		tokenString = r.Header.Get("X-Token")
	}
	if tokenString == "" {
		if c, err := r.Cookie(sessionCookie); err == nil {
			tokenString = c.Value
		}
	}
	if tokenString == "" {
		return "", fmt.Errorf("no session token found")
	}
	return s.parse(tokenString)
}

func (s *Sessions) parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid session token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("session token missing subject")
	}
	return sub, nil
}

// SessionCookie formats the Set-Cookie value carrying a session token.
func SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
