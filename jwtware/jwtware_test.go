package jwtware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hidenkeys/aloes/acl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddleware(t *testing.T) *Middleware {
	m, err := New(Config{KeyID: "test", Secret: []byte("secret"), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestIssueAndParse(t *testing.T) {
	m := newMiddleware(t)

	raw, exp, err := m.Issue(acl.Principal{UserID: 4, Username: "gestion", IsStaff: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	token, p, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "test", token.Header["kid"])
	assert.Equal(t, uint(4), p.UserID)
	assert.Equal(t, acl.Staff, p.Role())
	assert.NotEmpty(t, p.SessionID)
}

func TestParse_RejectsForeignKeys(t *testing.T) {
	m := newMiddleware(t)

	other, err := New(Config{KeyID: "test", Secret: []byte("other"), TTL: time.Hour})
	require.NoError(t, err)
	raw, _, err := other.Issue(acl.Principal{UserID: 1, IsSuperuser: true})
	require.NoError(t, err)

	_, _, err = m.Parse(raw)
	assert.Error(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	unsigned.Header["kid"] = "test"
	rawNone, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = m.Parse(rawNone)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	m := newMiddleware(t)
	raw, _, err := m.Issue(acl.Principal{UserID: 9, Username: "admin", IsSuperuser: true, SessionID: "sid-1"})
	require.NoError(t, err)

	app := fiber.New()
	app.Use(m.Handler())
	app.Get("/whoami", func(c fiber.Ctx) error {
		p := acl.FromCtx(c)
		if p == nil {
			return c.SendString("anonymous")
		}
		return c.SendString(p.SessionID)
	})

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		expect string
	}{
		{"no token", func(r *http.Request) {}, "anonymous"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }, "sid-1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: raw}) }, "sid-1"},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			tt.setup(req)
			resp, err := app.Test(req)
			require.NoError(t, err)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, string(body))
		})
	}
}
