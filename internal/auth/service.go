// ABOUTME: Account service: registration, password login, and token authentication
// ABOUTME: All document mutations go through store.Update so uniqueness holds under concurrency

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/roster/internal/rules"
	"github.com/2389/roster/internal/store"
)

// Service issues and verifies credentials against the roster document.
type Service struct {
	store  store.Store
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the bcrypt cost used for new password hashes.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.With("component", "auth") }
}

// NewService returns a Service. Tokens older than ttl are rejected; a
// non-positive ttl disables expiry.
func NewService(s store.Store, ttl time.Duration, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default().With("component", "auth"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates an active intermittent user.
func (s *Service) Register(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, ErrMissingCredentials
	}

	// Hash outside the critical section.
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return store.User{}, err
	}

	var created store.User
	err = s.store.Update(ctx, func(doc *store.Document) error {
		if err := rules.ValidateUsername(doc, username); err != nil {
			return err
		}
		created = store.User{
			ID:           rules.NextID(doc.Users),
			Username:     username,
			PasswordHash: hash,
			Role:         store.RoleIntermittent,
			IsActive:     true,
			Lifecycle:    store.Active(),
		}
		doc.Users = append(doc.Users, created)
		return nil
	})
	if err != nil {
		return store.User{}, err
	}

	s.logger.Info("user registered", "user_id", created.ID, "username", created.Username)
	return created, nil
}

// Login verifies a username and password and issues a new token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}

	user, ok := doc.UserByUsername(username)
	if !ok {
		_ = CheckPassword(dummyHash, password)
		return "", ErrInvalidCredentials
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", ErrInvalidCredentials
	}

	token, err := NewToken(user.ID)
	if err != nil {
		return "", err
	}

	userID := user.ID
	err = s.store.Update(ctx, func(doc *store.Document) error {
		// The user may have been deleted or disabled since the password check.
		u, ok := doc.User(userID)
		if !ok || !u.IsActive {
			return ErrInvalidCredentials
		}
		doc.Tokens = append(doc.Tokens, store.Token{
			Token:     token,
			UserID:    userID,
			CreatedAt: s.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("token issued", "user_id", userID)
	return token, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*store.User, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	record, ok := doc.Token(token)
	if !ok {
		return nil, ErrInvalidToken
	}
	if record.Expired(s.now(), s.ttl) {
		return nil, ErrExpiredToken
	}

	user, ok := doc.User(record.UserID)
	if !ok {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// EnsureAdmin creates username as an admin, or promotes and reactivates the
// existing non-deleted user with that name. It returns the user and whether
// it was newly created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (store.User, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, false, ErrMissingCredentials
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return store.User{}, false, err
	}

	var result store.User
	var created bool
	err = s.store.Update(ctx, func(doc *store.Document) error {
		if u, ok := doc.UserByUsername(username); ok {
			u.Role = store.RoleAdmin
			u.IsActive = true
			u.PasswordHash = hash
			result = *u
			return nil
		}
		result = store.User{
			ID:           rules.NextID(doc.Users),
			Username:     username,
			PasswordHash: hash,
			Role:         store.RoleAdmin,
			IsActive:     true,
		}
		doc.Users = append(doc.Users, result)
		created = true
		return nil
	})
	if err != nil {
		return store.User{}, false, fmt.Errorf("ensuring admin: %w", err)
	}
	return result, created, nil
}

// IsAuthError reports whether err is a credential failure rather than a storage problem.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrInactiveUser) ||
		errors.Is(err, ErrInvalidCredentials)
}
