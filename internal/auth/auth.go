// Package auth registers accounts, issues signed session tokens and checks
// them on incoming requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"organizer/internal/models"
	"organizer/internal/storage"
)

// DefaultTTL is how long an issued session stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the persistence the service needs.
type Store interface {
	storage.UserStore
	storage.TokenStore
}

// Session is an authenticated user plus the token proving it.
type Session struct {
	Token     string      `json:"token,omitempty"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Config tunes token issuance. Secret is required.
type Config struct {
	Secret     []byte
	TTL        time.Duration
	BcryptCost int
	Now        func() time.Time
	Logger     *slog.Logger
}

// Service issues, validates and revokes session tokens.
type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

type claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// NewService validates cfg and fills in defaults for unset fields.
func NewService(store Store, cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth secret is required")
	}
	s := &Service{
		store:  store,
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		cost:   cfg.BcryptCost,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// NormalizeEmail trims and lowercases an address before it is stored or compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail expects an already normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required: %w", models.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || strings.ToLower(addr.Address) != email {
		return fmt.Errorf("invalid email: %w", models.ErrValidation)
	}
	return nil
}

// Register creates an account and signs it in. The name defaults to the email.
func (s *Service) Register(ctx context.Context, email, password, name string) (Session, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, fmt.Errorf("password is required: %w", models.ErrValidation)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Session{}, fmt.Errorf("password too long: %w", models.ErrValidation)
		}
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, models.User{
		Email:       email,
		Name:        name,
		Preferences: models.DefaultPreferences(),
	}, string(hash))
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Login checks credentials. Unknown emails and wrong passwords fail alike.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, hash, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return Session{}, models.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, models.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Logout revokes the token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, token string) error {
	c, err := s.parse(token)
	if err != nil {
		return err
	}
	return s.store.RevokeToken(ctx, c.ID, c.ExpiresAt.Time, s.now())
}

// CurrentSession resolves a token to its user. Any failure to verify the
// token, a revoked token and a deleted account all yield ErrUnauthenticated.
func (s *Service) CurrentSession(ctx context.Context, token string) (Session, error) {
	c, err := s.parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsTokenRevoked(ctx, c.ID, s.now())
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, fmt.Errorf("token revoked: %w", models.ErrUnauthenticated)
	}
	user, err := s.store.GetUser(ctx, c.Subject)
	if errors.Is(err, models.ErrNotFound) {
		return Session{}, fmt.Errorf("account gone: %w", models.ErrUnauthenticated)
	}
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (s *Service) issue(user models.User) (Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        models.NewID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: user.ID,
		Email:  user.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, User: user, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (s *Service) parse(token string) (claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return claims{}, fmt.Errorf("missing token: %w", models.ErrUnauthenticated)
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return claims{}, fmt.Errorf("%w: %w", models.ErrUnauthenticated, err)
	}
	if c.Subject == "" || c.ID == "" {
		return claims{}, fmt.Errorf("incomplete token: %w", models.ErrUnauthenticated)
	}
	return c, nil
}
