package services

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"catalog/internal/logger"
	"catalog/internal/models"
	"catalog/internal/repositories"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned for correct credentials of an inactive user.
	ErrAccountDisabled = errors.New("account disabled")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrEmailTaken      = errors.New("email already registered")
	ErrInvalidUsername = errors.New("username must be between 1 and 64 characters")
	ErrInvalidToken    = errors.New("invalid token")
)

const rememberIssuer = "catalog"

// NewUser carries the fields of an administrative provisioning request.
type NewUser struct {
	Username string
	Email    string
	Password string
	Role     string
}

// AuthService handles authentication and user provisioning.
type AuthService struct {
	userRepo    repositories.UserRepository
	hasher      PasswordHasher
	secret      []byte
	rememberTTL time.Duration
	log         *logger.Logger
	now         func() time.Time
}

// NewAuthService creates a new AuthService. secret signs remember-me tokens.
func NewAuthService(userRepo repositories.UserRepository, hasher PasswordHasher, secret string, rememberTTL time.Duration, log *logger.Logger) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		hasher:      hasher,
		secret:      []byte(secret),
		rememberTTL: rememberTTL,
		log:         log,
		now:         time.Now,
	}
}

// Authenticate looks up the user by exact username and checks the password.
// The same error is returned for an unknown user and a wrong password.
func (s *AuthService) Authenticate(username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			s.log.Error().Err(err).Msg("user lookup failed during login")
		}
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.log.Info().Uint("user_id", user.ID).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		s.log.Info().Uint("user_id", user.ID).Msg("login attempt on disabled account")
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// CreateUser provisions a new active user with a hashed password.
func (s *AuthService) CreateUser(req NewUser) (*models.User, error) {
	if n := utf8.RuneCountInString(req.Username); n < 1 || n > 64 {
		return nil, ErrInvalidUsername
	}
	if _, err := s.userRepo.GetByUsername(req.Username); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, req.Username)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	var email *string
	if e := strings.TrimSpace(req.Email); e != "" {
		if _, err := s.userRepo.GetByEmail(e); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, e)
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		email = &e
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = models.DefaultRole
	}
	user := &models.User{
		Username:     req.Username,
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		Active:       true,
	}
	if err := s.userRepo.Create(user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, req.Username)
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	return user, nil
}

// GetUser loads the user bound to a session by its string id.
func (s *AuthService) GetUser(id string) (*models.User, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return nil, fmt.Errorf("malformed user id %q: %w", id, repositories.ErrNotFound)
	}
	return s.userRepo.GetByID(uint(n))
}

// IssueRememberToken returns a signed long-lived token identifying user.
func (s *AuthService) IssueRememberToken(user models.Principal) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.rememberTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.GetID(),
		Issuer:    rememberIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, expires, nil
}

// ValidateRememberToken parses a remember-me token and returns its active user.
func (s *AuthService) ValidateRememberToken(tokenString string) (*models.User, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(rememberIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := s.GetUser(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !user.IsActive() {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// redirectNoise is what browsers drop from a Location value before resolving
// it: leading C0 controls and spaces, and tabs or newlines anywhere.
var redirectNoise = strings.NewReplacer("\t", "", "\n", "", "\r", "")

const c0OrSpace = "\x00\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a\x0b\x0c\x0d\x0e\x0f" +
	"\x10\x11\x12\x13\x14\x15\x16\x17\x18\x19\x1a\x1b\x1c\x1d\x1e\x1f\x20"

// SafeRedirectTarget returns next when it is a local path and def otherwise.
// Anything with a network location (absolute or scheme-relative URLs) is
// refused to prevent open redirects. The check runs on next as a browser
// would read it.
func SafeRedirectTarget(next, def string) string {
	if next == "" {
		return def
	}
	u, err := url.Parse(strings.TrimLeft(redirectNoise.Replace(next), c0OrSpace))
	if err != nil || u.Host != "" || u.User != nil {
		return def
	}
	return next
}
