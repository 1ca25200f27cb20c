package app

import (
	"errors"
	"fmt"

	"catalog/internal/models"
	"catalog/internal/services"
)

// seedAdmin provisions the configured administrator unless that username
// already exists. Existing accounts are left untouched.
func (a *App) seedAdmin() error {
	cfg := a.Config
	if cfg.AdminUsername == "" {
		return nil
	}

	user, err := a.Auth.CreateUser(services.NewUser{
		Username: cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     models.DefaultRole,
	})
	if errors.Is(err, services.ErrUsernameTaken) {
		a.Logger.Debug().Str("username", cfg.AdminUsername).Msg("admin user already provisioned")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to provision admin user: %w", err)
	}

	a.Logger.Info().Str("username", user.Username).Uint("user_id", user.ID).Msg("admin user provisioned")
	return nil
}
