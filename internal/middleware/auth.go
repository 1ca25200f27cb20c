package middleware

import (
	"net/url"
	"time"

	"catalog/internal/logger"
	"catalog/internal/models"
	"catalog/internal/services"
	"catalog/internal/session"

	"github.com/gofiber/fiber/v2"
)

const (
	// RememberCookie holds the signed remember-me token.
	RememberCookie = "remember_token"
	// LoginPath is where anonymous requests to protected pages are sent.
	LoginPath = "/auth/login"

	userLocalsKey = "user"
)

// CurrentUser returns the user resolved by LoadUser, or nil for anonymous requests.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocalsKey).(*models.User)
	return user
}

// LoadUser resolves the principal bound to the session. When the session has
// none, a valid remember-me cookie re-binds its user.
func LoadUser(authService *services.AuthService, sessions *session.Manager, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := sessions.CurrentUserID(c); ok {
			user, err := authService.GetUser(id)
			if err == nil && user.IsActive() {
				c.Locals(userLocalsKey, user)
				return c.Next()
			}
			// user deleted or disabled since login
			log.Info().Str("user_id", id).Msg("dropping stale session principal")
			if err := sessions.Logout(c); err != nil {
				return err
			}
		}

		token := c.Cookies(RememberCookie)
		if token == "" {
			return c.Next()
		}
		user, err := authService.ValidateRememberToken(token)
		if err != nil {
			log.Debug().Err(err).Msg("remember-me token rejected")
			ClearRememberCookie(c)
			return c.Next()
		}
		if err := sessions.Login(c, user.GetID()); err != nil {
			return err
		}
		c.Locals(userLocalsKey, user)
		return c.Next()
	}
}

// LoginRequired sends anonymous requests to the login page, carrying the
// requested path in the next parameter.
func LoginRequired(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user := CurrentUser(c); user != nil && user.IsAuthenticated() {
			return c.Next()
		}
		if err := sessions.Flash(c, "info", "Please log in to access this page."); err != nil {
			return err
		}
		return c.Redirect(LoginPath+"?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
	}
}

// ClearRememberCookie expires the remember-me cookie on the client.
func ClearRememberCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RememberCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
