// Package session binds authenticated principals and flash messages to a
// cookie-identified server-side session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

const (
	// CookieName is the cookie carrying the session id.
	CookieName = "catalog_session"

	keyUserID  = "user_id"
	keyFlashes = "_flashes"

	localsSession = "catalog.session"
	localsDirty   = "catalog.session.dirty"
)

var errNoSession = errors.New("session middleware not installed")

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Config configures a Manager.
type Config struct {
	Expiration time.Duration
	// Storage defaults to fiber's in-memory storage when nil.
	Storage fiber.Storage
	Secure  bool
}

// Manager loads one session per request and saves it once the handler chain
// has finished, if anything changed.
type Manager struct {
	store *fibersession.Store
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	store := fibersession.New(fibersession.Config{
		Expiration:     cfg.Expiration,
		Storage:        cfg.Storage,
		KeyLookup:      "cookie:" + CookieName,
		CookieHTTPOnly: true,
		CookieSecure:   cfg.Secure,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
		KeyGenerator:   uuid.NewString,
	})
	return &Manager{store: store}
}

// Middleware makes the session available to the rest of the chain.
func (m *Manager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := m.store.Get(c)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		c.Locals(localsSession, sess)

		err = c.Next()

		if dirty, _ := c.Locals(localsDirty).(bool); dirty {
			if saveErr := sess.Save(); saveErr != nil && err == nil {
				err = fmt.Errorf("failed to save session: %w", saveErr)
			}
		}
		return err
	}
}

func (m *Manager) get(c *fiber.Ctx) (*fibersession.Session, error) {
	sess, ok := c.Locals(localsSession).(*fibersession.Session)
	if !ok {
		return nil, errNoSession
	}
	return sess, nil
}

func markDirty(c *fiber.Ctx) {
	c.Locals(localsDirty, true)
}

// Login binds userID to the session under a fresh session id.
func (m *Manager) Login(c *fiber.Ctx, userID string) error {
	sess, err := m.get(c)
	if err != nil {
		return err
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	sess.Set(keyUserID, userID)
	markDirty(c)
	return nil
}

// Logout removes any bound principal. It is safe to call without one.
func (m *Manager) Logout(c *fiber.Ctx) error {
	sess, err := m.get(c)
	if err != nil {
		return err
	}
	if sess.Get(keyUserID) == nil {
		return nil
	}
	sess.Delete(keyUserID)
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	markDirty(c)
	return nil
}

// CurrentUserID returns the bound user id, if any.
func (m *Manager) CurrentUserID(c *fiber.Ctx) (string, bool) {
	sess, err := m.get(c)
	if err != nil {
		return "", false
	}
	id, ok := sess.Get(keyUserID).(string)
	return id, ok && id != ""
}

// Flash queues a message for the next rendered page.
func (m *Manager) Flash(c *fiber.Ctx, category, message string) error {
	sess, err := m.get(c)
	if err != nil {
		return err
	}
	flashes := decodeFlashes(sess.Get(keyFlashes))
	flashes = append(flashes, Flash{Category: category, Message: message})

	raw, err := json.Marshal(flashes)
	if err != nil {
		return err
	}
	sess.Set(keyFlashes, string(raw))
	markDirty(c)
	return nil
}

// Flashes returns and clears the queued messages.
func (m *Manager) Flashes(c *fiber.Ctx) []Flash {
	sess, err := m.get(c)
	if err != nil {
		return nil
	}
	raw := sess.Get(keyFlashes)
	if raw == nil {
		return nil
	}
	sess.Delete(keyFlashes)
	markDirty(c)
	return decodeFlashes(raw)
}

func decodeFlashes(raw interface{}) []Flash {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal([]byte(s), &flashes); err != nil {
		return nil
	}
	return flashes
}
