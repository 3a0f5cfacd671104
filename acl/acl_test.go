package acl

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(p *Principal, min Role) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c fiber.Ctx, err error) error {
			if errors.Is(err, apperr.ErrPermission) {
				return c.SendStatus(fiber.StatusForbidden)
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	app.Use(func(c fiber.Ctx) error {
		if p != nil {
			SetPrincipal(c, p)
		}
		return c.Next()
	})
	app.Group("/gestion", Require(min)).Get("/rooms", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestPrincipalRole(t *testing.T) {
	var nobody *Principal
	assert.Equal(t, Anonymous, nobody.Role())
	assert.Equal(t, Anonymous, (&Principal{}).Role())
	assert.Equal(t, Authenticated, (&Principal{UserID: 1}).Role())
	assert.Equal(t, Staff, (&Principal{UserID: 1, IsStaff: true}).Role())
	assert.Equal(t, Superuser, (&Principal{UserID: 1, IsStaff: true, IsSuperuser: true}).Role())
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name       string
		principal  *Principal
		min        Role
		wantStatus int
	}{
		{"anonymous redirected", nil, Staff, http.StatusFound},
		{"authenticated forbidden", &Principal{UserID: 2}, Staff, http.StatusForbidden},
		{"staff allowed", &Principal{UserID: 2, IsStaff: true}, Staff, http.StatusOK},
		{"staff below superuser", &Principal{UserID: 2, IsStaff: true}, Superuser, http.StatusForbidden},
		{"superuser allowed", &Principal{UserID: 1, IsSuperuser: true}, Superuser, http.StatusOK},
		{"public route", nil, Anonymous, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(tt.principal, tt.min)
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/gestion/rooms?page=2", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRequire_RedirectCarriesNext(t *testing.T) {
	app := newApp(nil, Authenticated)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/gestion/rooms?page=2", nil))
	require.NoError(t, err)
	assert.Equal(t, "/login?next=%2Fgestion%2Frooms%3Fpage%3D2", resp.Header.Get("Location"))
}
