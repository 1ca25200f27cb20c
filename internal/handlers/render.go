package handlers

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"

	"catalog/internal/logger"
	"catalog/internal/middleware"
	"catalog/internal/models"
	"catalog/internal/services"
	"catalog/internal/session"

	"github.com/gofiber/fiber/v2"
)

// CSRFContextKey is the fiber Locals key the csrf middleware stores its token under.
const CSRFContextKey = "csrf"

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login.html", "list.html", "form.html", "view.html"}

// pageData is what every template receives. Page-specific fields are left
// zero by pages that don't use them.
type pageData struct {
	Title     string
	User      *models.User
	Flashes   []session.Flash
	CSRFToken string

	Next       string
	Login      loginForm
	Errors     map[string][]string
	Form       services.ProductInput
	FormAction string
	Product    *models.Product
	Products   *services.ProductPage
}

// Renderer executes the embedded HTML templates.
type Renderer struct {
	pages    map[string]*template.Template
	sessions *session.Manager
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer(sessions *session.Manager) (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages, sessions: sessions}, nil
}

// Render writes page with status. Pending flashes are consumed.
func (r *Renderer) Render(c *fiber.Ctx, status int, page string, data *pageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	data.User = middleware.CurrentUser(c)
	data.Flashes = r.sessions.Flashes(c)
	data.CSRFToken, _ = c.Locals(CSRFContextKey).(string)

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	c.Status(status)
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// ErrorHandler turns handler errors into plain-text responses. Unexpected
// errors are logged and reported without detail.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			log.Error().Err(err).Str("path", c.Path()).Str("request_id", middleware.RequestID(c)).Msg("unhandled error")
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(code).SendString(message)
	}
}
