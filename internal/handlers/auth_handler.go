package handlers

import (
	"errors"
	"fmt"

	"catalog/internal/logger"
	"catalog/internal/middleware"
	"catalog/internal/services"
	"catalog/internal/session"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const profilePath = "/auth/profile"

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
	sessions    *session.Manager
	render      *Renderer
	validate    *validator.Validate
	log         *logger.Logger
	secure      bool
}

// NewAuthHandler creates a new AuthHandler. secure marks the remember-me
// cookie as HTTPS only.
func NewAuthHandler(authService *services.AuthService, sessions *session.Manager, render *Renderer, log *logger.Logger, secure bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
		render:      render,
		validate:    validator.New(),
		log:         log,
		secure:      secure,
	}
}

// RegisterRoutes registers the authentication routes. requireLogin guards
// logout and profile.
func (h *AuthHandler) RegisterRoutes(router fiber.Router, requireLogin fiber.Handler) {
	authRoutes := router.Group("/auth")
	authRoutes.Get("/login", h.HandleLoginForm)
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Get("/logout", requireLogin, h.HandleLogout)
	authRoutes.Get("/profile", requireLogin, h.HandleProfile)
}

// loginForm represents the submitted login form.
type loginForm struct {
	Username   string `form:"username" validate:"required"`
	Password   string `form:"password" validate:"required"`
	RememberMe string `form:"remember_me"`
}

func (h *AuthHandler) renderLogin(c *fiber.Ctx, form loginForm, errs map[string][]string) error {
	form.Password = ""
	return h.render.Render(c, fiber.StatusOK, "login.html", &pageData{
		Title:  "Sign In",
		Next:   c.Query("next"),
		Login:  form,
		Errors: errs,
	})
}

// HandleLoginForm shows the login page.
func (h *AuthHandler) HandleLoginForm(c *fiber.Ctx) error {
	if middleware.CurrentUser(c) != nil {
		return c.Redirect(profilePath, fiber.StatusFound)
	}
	return h.renderLogin(c, loginForm{}, nil)
}

// HandleLogin checks the submitted credentials and binds the user to the session.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	if middleware.CurrentUser(c) != nil {
		return c.Redirect(profilePath, fiber.StatusFound)
	}

	var form loginForm
	if err := c.BodyParser(&form); err != nil {
		h.log.Debug().Err(err).Msg("error parsing login form")
		return h.renderLogin(c, form, map[string][]string{"form": {"Invalid form submission."}})
	}

	if err := h.validate.Struct(form); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		errorMessages := make(map[string][]string)
		for _, e := range validationErrors {
			field := e.StructField()
			if field == "Username" {
				errorMessages["username"] = append(errorMessages["username"], "This field is required.")
			} else {
				errorMessages["password"] = append(errorMessages["password"], "This field is required.")
			}
		}
		return h.renderLogin(c, form, errorMessages)
	}

	user, err := h.authService.Authenticate(form.Username, form.Password)
	switch {
	case errors.Is(err, services.ErrAccountDisabled):
		if err := h.sessions.Flash(c, "warning", "Your account is disabled. Please contact support."); err != nil {
			return err
		}
		return c.Redirect(middleware.LoginPath, fiber.StatusFound)
	case err != nil:
		if err := h.sessions.Flash(c, "danger", "Invalid username or password."); err != nil {
			return err
		}
		return h.renderLogin(c, form, nil)
	}

	if err := h.sessions.Login(c, user.GetID()); err != nil {
		return err
	}
	if form.RememberMe != "" {
		token, expires, err := h.authService.IssueRememberToken(user)
		if err != nil {
			return err
		}
		c.Cookie(&fiber.Cookie{
			Name:     middleware.RememberCookie,
			Value:    token,
			Path:     "/",
			Expires:  expires,
			HTTPOnly: true,
			Secure:   h.secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	if err := h.sessions.Flash(c, "success", "Logged in successfully!"); err != nil {
		return err
	}

	h.log.Info().Uint("user_id", user.ID).Msg("user logged in")
	return c.Redirect(services.SafeRedirectTarget(c.Query("next"), profilePath), fiber.StatusFound)
}

// HandleLogout clears the session principal and the remember-me cookie.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	if err := h.sessions.Logout(c); err != nil {
		return err
	}
	middleware.ClearRememberCookie(c)
	if err := h.sessions.Flash(c, "info", "You have been logged out."); err != nil {
		return err
	}
	return c.Redirect(middleware.LoginPath, fiber.StatusFound)
}

// HandleProfile greets the logged in user.
func (h *AuthHandler) HandleProfile(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	return c.SendString(fmt.Sprintf("Hello, %s! This is your protected profile.", user.Username))
}
