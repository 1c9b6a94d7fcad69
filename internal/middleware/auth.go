// Package middleware provides request-scoped Fiber middleware: identity
// resolution, logging context, tracing, metrics and rate limiting.
package middleware

import (
	"github.com/gofiber/fiber/v2"

	"feedhub/internal/auth"
)

// LocalsAuthKey is the Fiber locals key holding the resolved auth.Context.
const LocalsAuthKey = "auth"

// Resolver turns a raw bearer token into an auth.Context.
type Resolver interface {
	Resolve(raw string) auth.Context
}

// AuthContext resolves the bearer token on every request. It never rejects:
// anonymous requests continue with an unauthenticated context and each
// operation decides whether that is allowed.
func AuthContext(resolver Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac := resolver.Resolve(auth.BearerToken(c.Get(fiber.HeaderAuthorization)))

		c.Locals(LocalsAuthKey, ac)
		c.SetUserContext(auth.WithContext(c.UserContext(), ac))
		return c.Next()
	}
}

// AuthFrom returns the auth.Context resolved for this request.
func AuthFrom(c *fiber.Ctx) auth.Context {
	if ac, ok := c.Locals(LocalsAuthKey).(auth.Context); ok {
		return ac
	}
	return auth.FromContext(c.UserContext())
}
