package middleware

import (
	"strings"

	"raildrops/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/logger"
)

const (
	accountKey = "account"
	RoleAdmin  = "admin"
)

// UserContext reads the identity headers set by the gateway into a models.Account.
// Secured paths (/s/...) require X-User-ID; public paths get an anonymous account
// when it is missing.
func UserContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if strings.HasPrefix(c.Path(), "/s/") && userID == "" {
			logger.Warningf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		acct := models.Account{UserID: userID, Roles: roles}
		if userID != "" {
			acct.Kind = models.ParseAccountKind(strings.ToLower(strings.TrimSpace(c.Get("X-Account-Kind"))))
		}
		c.Locals(accountKey, acct)
		return c.Next()
	}
}

// AccountFrom returns the account stored by UserContext.
func AccountFrom(c *fiber.Ctx) models.Account {
	acct, _ := c.Locals(accountKey).(models.Account)
	return acct
}

// RequireRole rejects accounts that lack role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		acct := AccountFrom(c)
		if !acct.HasRole(role) {
			logger.Warningf("🚫 [USER_CTX] User %q lacks role %q for %s", acct.UserID, role, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient permissions",
			})
		}
		return c.Next()
	}
}
