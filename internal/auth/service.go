// Package auth handles accounts and opaque bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/inf/reelbox/internal/store"
)

const (
	minPasswordLen = 6
	maxUsernameLen = 32

	// DefaultSessionTTL bounds how long a login stays valid.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidCredentials covers both unknown accounts and wrong
	// passwords; callers must not be able to tell them apart.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken means the bearer token is unknown or expired.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	// ErrWeakPassword rejects passwords below the minimum length.
	ErrWeakPassword = fmt.Errorf("auth: password must have at least %d characters", minPasswordLen)
	// ErrBadUsername rejects empty or oversized usernames.
	ErrBadUsername = errors.New("auth: invalid username")
)

// Store is the account storage the service uses.
type Store interface {
	CreateUser(ctx context.Context, u *store.User) error
	UserByID(ctx context.Context, id int64) (*store.User, error)
	UserByLogin(ctx context.Context, usernameOrPhone string) (*store.User, error)
	UpdateUserProfile(ctx context.Context, id int64, phone, email, avatar string) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

type session struct {
	userID  int64
	expires time.Time
}

// Service issues and validates opaque session tokens. Tokens live in
// memory only: a daemon restart logs everyone out.
type Service struct {
	store Store
	log   zerolog.Logger
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]session
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL overrides the token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an auth service over the given store.
func NewService(st Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		log:      log,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		sessions: make(map[string]session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. The username doubles as the login; the
// phone number is an optional alternate login.
func (s *Service) Register(ctx context.Context, username, phone, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLen {
		return nil, ErrBadUsername
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &store.User{Username: username, Phone: phone, PasswordHash: string(hash)}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", u.ID).Str("username", username).Msg("account created")
	return u, nil
}

// Login checks the credentials against username or phone and issues a
// fresh token.
func (s *Service) Login(ctx context.Context, login, password string) (string, *store.User, error) {
	u, err := s.store.UserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = session{userID: u.ID, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.log.Info().Int64("user_id", u.ID).Msg("login")
	return token, u, nil
}

// Validate resolves a token to its account.
func (s *Service) Validate(ctx context.Context, token string) (*store.User, error) {
	s.mu.Lock()
	sess, ok := s.sessions[token]
	if ok && s.now().After(sess.expires) {
		delete(s.sessions, token)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidToken
	}

	u, err := s.store.UserByID(ctx, sess.userID)
	if errors.Is(err, store.ErrNotFound) {
		// Account deleted underneath the session.
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrInvalidToken
	}
	return u, err
}

// Logout invalidates a token. Unknown tokens are ignored.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// ChangePassword swaps the credential after verifying the old one.
// Other sessions of the account stay valid.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdatePasswordHash(ctx, userID, string(hash))
}

// UpdateProfile rewrites the mutable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, phone, email, avatar string) error {
	return s.store.UpdateUserProfile(ctx, userID, phone, email, avatar)
}

// PruneExpired drops expired sessions and reports how many were removed.
func (s *Service) PruneExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}
