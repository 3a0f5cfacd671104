// Package jwtware issues session tokens and turns them back into an acl.Principal.
package jwtware

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hidenkeys/aloes/acl"
)

const (
	CookieName = "aloes_session"
	ContextKey = "user"
)

var ErrIssueDisabled = errors.New("tokens are issued by the external identity provider")

type Config struct {
	// KeyID is written in the kid header and selects the signing key.
	KeyID  string
	Secret []byte
	// JWKSURL switches verification to a remote key set; local issuing is then disabled.
	JWKSURL string
	TTL     time.Duration
}

type Claims struct {
	UserID      uint   `json:"user_id"`
	Username    string `json:"username"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	jwt.RegisteredClaims
}

type Middleware struct {
	cfg     Config
	jwks    *keyfunc.JWKS
	methods []string
}

func New(cfg Config) (*Middleware, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 72 * time.Hour
	}
	m := &Middleware{cfg: cfg}

	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, err
		}
		m.jwks = jwks
		m.methods = []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}
		return m, nil
	}

	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	m.jwks = keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		cfg.KeyID: keyfunc.NewGivenHMAC(cfg.Secret, keyfunc.GivenKeyOptions{
			Algorithm: jwt.SigningMethodHS256.Alg(),
		}),
	})
	m.methods = []string{jwt.SigningMethodHS256.Alg()}
	return m, nil
}

// Close stops the background JWKS refresh, if any.
func (m *Middleware) Close() {
	if m.jwks != nil {
		m.jwks.EndBackground()
	}
}

// Issue signs a session token for p. A fresh session id becomes the token id.
func (m *Middleware) Issue(p acl.Principal) (string, time.Time, error) {
	if m.cfg.JWKSURL != "" {
		return "", time.Time{}, ErrIssueDisabled
	}

	now := time.Now()
	exp := now.Add(m.cfg.TTL)
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}
	claims := Claims{
		UserID:      p.UserID,
		Username:    p.Username,
		IsStaff:     p.IsStaff,
		IsSuperuser: p.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.SessionID,
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = m.cfg.KeyID

	signed, err := token.SignedString(m.cfg.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies raw and returns the principal it carries.
func (m *Middleware) Parse(raw string) (*jwt.Token, *acl.Principal, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, m.jwks.Keyfunc, jwt.WithValidMethods(m.methods))
	if err != nil {
		return nil, nil, err
	}
	if !token.Valid {
		return nil, nil, jwt.ErrTokenInvalidClaims
	}

	return token, &acl.Principal{
		UserID:      claims.UserID,
		Username:    claims.Username,
		SessionID:   claims.ID,
		IsStaff:     claims.IsStaff,
		IsSuperuser: claims.IsSuperuser,
	}, nil
}

// Handler attaches the principal of a valid session token to the request.
// Requests without a usable token continue as anonymous; acl.Require decides.
func (m *Middleware) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw := extract(c)
		if raw == "" {
			return c.Next()
		}

		token, p, err := m.Parse(raw)
		if err != nil {
			return c.Next()
		}

		c.Locals(ContextKey, token)
		acl.SetPrincipal(c, p)
		return c.Next()
	}
}

// SetCookie stores the session token in an http-only cookie.
func SetCookie(c fiber.Ctx, token string, exp time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func ClearCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
}

func extract(c fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return c.Cookies(CookieName)
}
