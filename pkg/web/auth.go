package web

import (
	"github.com/gofiber/fiber/v3"
)

// userIDKey is the fiber.Locals key the authenticated user id is stored
// under.
const userIDKey = "stepline.user_id"

// UserIDHeader is the header the upstream auth proxy sets after verifying
// the caller's identity.
const UserIDHeader = "X-User-ID"

// Authenticator resolves the caller's user id from a request. The default
// trusts an already-verified identity header; deployments terminate real
// authentication upstream.
type Authenticator func(c fiber.Ctx) (string, error)

// HeaderAuthenticator reads the user id from UserIDHeader.
func HeaderAuthenticator(c fiber.Ctx) (string, error) {
	return c.Get(UserIDHeader), nil
}

// RequireUser is middleware that resolves the caller's identity and
// rejects anonymous requests. The resolved id is stored in request
// locals for handlers.
func RequireUser(authenticate Authenticator) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID, err := authenticate(c)
		if err != nil {
			return unauthorized(c, "failed to resolve identity")
		}

		if userID == "" {
			return unauthorized(c, "missing "+UserIDHeader+" header")
		}

		c.Locals(userIDKey, userID)

		return c.Next()
	}
}

// requestUserID returns the identity resolved by RequireUser, or empty.
func requestUserID(c fiber.Ctx) string {
	userID, _ := c.Locals(userIDKey).(string)

	return userID
}
