package web

import (
	"github.com/dukex/labflow/pkg/auth"
	"github.com/dukex/labflow/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// Identity headers set by the authenticating gateway.
const (
	HeaderUsername = "X-Auth-Username"
	HeaderSubject  = "X-Auth-Subject"
	HeaderEmail    = "X-Auth-Email"
	HeaderRoles    = "X-Auth-Roles"
)

const principalKey = "labflow.principal"

// Principal extracts the caller identity from gateway headers. Requests without
// headers get an empty principal, which every protected operation rejects.
func Principal() fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals(principalKey, auth.Principal{
			Identity: models.Identity{
				Username: c.Get(HeaderUsername),
				Sub:      c.Get(HeaderSubject),
				Email:    c.Get(HeaderEmail),
			},
			Roles: auth.ParseRoles(c.Get(HeaderRoles)),
		})

		return c.Next()
	}
}

func principalFrom(c fiber.Ctx) auth.Principal {
	principal, _ := c.Locals(principalKey).(auth.Principal)

	return principal
}
