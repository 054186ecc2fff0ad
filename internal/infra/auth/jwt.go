// Package auth issues and verifies HS256 session tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/domain"
)

type SessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the authenticated user, carried in the subject claim.
func (c *SessionClaims) UserID() string { return c.Subject }

type Manager struct {
	secret []byte
	cookie string
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(cfg config.AuthConfig) *Manager {
	name := cfg.CookieName
	if name == "" {
		name = "session"
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		secret: []byte(cfg.JWTSecret),
		cookie: name,
		secure: cfg.SecureCookie,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint signs a session token for userID.
func (m *Manager) Mint(userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("mint: empty user id")
	}
	now := m.now()
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Subject:   userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ParseFromRequest reads the token from "Authorization: Bearer" or the
// session cookie. Every failure is domain.ErrUnauthenticated.
func (m *Manager) ParseFromRequest(r *http.Request) (*SessionClaims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return m.Verify(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(m.cookie); err == nil && c.Value != "" {
		return m.Verify(c.Value)
	}
	return nil, domain.ErrUnauthenticated
}

func (m *Manager) Verify(tok string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, domain.ErrUnauthenticated
	}
	return claims, nil
}
