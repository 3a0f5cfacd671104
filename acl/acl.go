// Package acl gates handlers on the role of the signed-in user.
package acl

import (
	"net/url"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/apperr"
)

type Role int

const (
	Anonymous Role = iota
	Authenticated
	Staff
	Superuser
)

func (r Role) String() string {
	switch r {
	case Authenticated:
		return "authenticated"
	case Staff:
		return "staff"
	case Superuser:
		return "superuser"
	default:
		return "anonymous"
	}
}

const principalKey = "principal"

// LoginPath is where anonymous visitors are sent by Require.
var LoginPath = "/login"

// Principal is the identity attached to a request by the session middleware.
type Principal struct {
	UserID      uint
	Username    string
	SessionID   string
	IsStaff     bool
	IsSuperuser bool
}

func (p *Principal) Role() Role {
	switch {
	case p == nil || p.UserID == 0:
		return Anonymous
	case p.IsSuperuser:
		return Superuser
	case p.IsStaff:
		return Staff
	default:
		return Authenticated
	}
}

func SetPrincipal(c fiber.Ctx, p *Principal) {
	c.Locals(principalKey, p)
}

// FromCtx returns the request principal, or nil for an anonymous request.
func FromCtx(c fiber.Ctx) *Principal {
	p, _ := c.Locals(principalKey).(*Principal)
	return p
}

// Require lets the request through when the principal has at least min.
// Anonymous visitors are redirected to the login page with a next parameter;
// signed-in users without the role get a permission error.
func Require(min Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		p := FromCtx(c)
		role := p.Role()
		if role >= min {
			return c.Next()
		}

		if role == Anonymous {
			c.Set(fiber.HeaderLocation, LoginPath+"?next="+url.QueryEscape(c.OriginalURL()))
			return c.SendStatus(fiber.StatusFound)
		}
		return apperr.Permission("accès réservé (%s requis)", min)
	}
}
