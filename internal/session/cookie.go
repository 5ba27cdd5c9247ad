package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName is the session cookie carried by the browser.
	CookieName = "support_sid"
)

// CookieCodec signs session tokens into cookie values so that clients cannot
// forge or guess a token for someone else's session.
type CookieCodec struct {
	secret []byte
	maxAge time.Duration
	secure bool
}

// NewCookieCodec creates a codec that signs with secret (HS256).
func NewCookieCodec(secret string, maxAge time.Duration, secure bool) *CookieCodec {
	return &CookieCodec{secret: []byte(secret), maxAge: maxAge, secure: secure}
}

// Encode signs token.
func (c *CookieCodec) Encode(token string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        token,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies value and returns the session token it carries.
func (c *CookieCodec) Decode(value string) (string, error) {
	claims, err := c.decodeClaims(value)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}

func (c *CookieCodec) decodeClaims(value string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify session cookie: %w", err)
	}
	if claims.ID == "" {
		return nil, errors.New("session cookie has no token")
	}
	return claims, nil
}

// Write sets the session cookie for token.
func (c *CookieCodec) Write(w http.ResponseWriter, token string) error {
	value, err := c.Encode(token)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		Expires:  time.Now().Add(c.maxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.secure,
	})
	return nil
}

// Clear expires the session cookie in the browser.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.secure,
	})
}

// tokenFromRequest returns the verified token in the request cookie, if any,
// and whether the cookie is past half its lifetime and should be re-issued.
// Sessions expire on inactivity, so the cookie slides with use.
func (c *CookieCodec) tokenFromRequest(r *http.Request) (token string, stale, ok bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false, false
	}
	claims, err := c.decodeClaims(cookie.Value)
	if err != nil {
		return "", false, false
	}
	if claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < c.maxAge/2 {
		stale = true
	}
	return claims.ID, stale, true
}
