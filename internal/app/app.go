// Package app builds the catalog server: it opens the store, wires services,
// sessions and handlers, and owns every resource that needs closing.
package app

import (
	"context"
	"errors"
	"fmt"

	"catalog/internal/config"
	"catalog/internal/database"
	"catalog/internal/handlers"
	"catalog/internal/logger"
	"catalog/internal/middleware"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/internal/session"
	"catalog/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// App is the application context constructed once at startup.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *logger.Logger
	Auth     *services.AuthService
	Products *services.ProductService
	Sessions *session.Manager
	Fiber    *fiber.App

	mq           *rabbitmq.Client
	sessionStore *session.RedisStorage
}

// New opens the store and wires the HTTP application described by cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db)
		return nil, err
	}

	a := &App{Config: cfg, DB: db, Logger: log}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	cfg := a.Config

	var events services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, a.Logger.GetChildLogger())
		if err != nil {
			// events are best effort, the catalog works without them
			a.Logger.Warn().Err(err).Msg("catalog events disabled")
		} else {
			a.mq = mq
			events = mq
		}
	}

	sessionCfg := session.Config{Expiration: cfg.SessionTTL, Secure: cfg.CookieSecure}
	if cfg.RedisURL != "" {
		store, err := session.NewRedisStorage(cfg.RedisURL)
		if err != nil {
			return err
		}
		a.sessionStore = store
		sessionCfg.Storage = store
	}
	a.Sessions = session.NewManager(sessionCfg)

	hasher := services.NewBcryptHasher()
	if cfg.Testing {
		hasher.Cost = bcrypt.MinCost
	}
	a.Auth = services.NewAuthService(repositories.NewGORMUserRepository(a.DB), hasher, cfg.SecretKey, cfg.RememberTTL, a.Logger)
	a.Products = services.NewProductService(repositories.NewGORMProductRepository(a.DB), events, cfg.PageSize, a.Logger)

	if err := a.seedAdmin(); err != nil {
		return err
	}
	return a.initHTTP(sessionCfg.Secure)
}

func (a *App) initHTTP(secureCookies bool) error {
	render, err := handlers.NewRenderer(a.Sessions)
	if err != nil {
		return err
	}

	f := fiber.New(fiber.Config{
		AppName:               "catalog",
		UnescapePath:          true,
		ErrorHandler:          handlers.ErrorHandler(a.Logger),
		DisableStartupMessage: true,
	})

	f.Use(recover.New())
	f.Use(middleware.RequestLogger(a.Logger))

	f.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	f.Use(a.Sessions.Middleware())
	if a.Config.CSRFEnabled {
		f.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:csrf_token",
			CookieName:     "catalog_csrf",
			CookieSameSite: fiber.CookieSameSiteLaxMode,
			CookieHTTPOnly: true,
			CookieSecure:   secureCookies,
			Expiration:     a.Config.SessionTTL,
			KeyGenerator:   uuid.NewString,
			ContextKey:     handlers.CSRFContextKey,
		}))
	}
	f.Use(middleware.LoadUser(a.Auth, a.Sessions, a.Logger))

	requireLogin := middleware.LoginRequired(a.Sessions)
	handlers.NewAuthHandler(a.Auth, a.Sessions, render, a.Logger, secureCookies).RegisterRoutes(f, requireLogin)
	handlers.NewProductHandler(a.Products, a.Sessions, render, a.Logger).RegisterRoutes(f, requireLogin)

	a.Fiber = f
	return nil
}

// Close releases the broker, session storage and database connections.
func (a *App) Close() error {
	var errs []error
	if a.mq != nil {
		if err := a.mq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.sessionStore != nil {
		if err := a.sessionStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session storage: %w", err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
