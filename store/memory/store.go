// Package memory implements the credential store in process memory.
// Intended for tests and local development; nothing survives a restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerly/auth"
)

// Store is an in-memory [auth.CredentialStore]. All operations take the
// store mutex, so the same atomicity guarantees hold as for the
// PostgreSQL store: Create is a check-and-insert under one lock and no
// reader ever sees a partial update.
type Store struct {
	mu      sync.Mutex
	byID    map[string]auth.User
	byEmail map[string]string // lowercased email -> user ID
}

func NewStore() *Store {
	return &Store{
		byID:    make(map[string]auth.User),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) Create(_ context.Context, input auth.CreateUserInput) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(input.Email)
	if _, exists := s.byEmail[key]; exists {
		return auth.User{}, auth.ErrDuplicateEmail
	}

	user := auth.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		DisplayName:  input.DisplayName,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[user.ID] = user
	s.byEmail[key] = user.ID

	return user, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Store) FindByID(_ context.Context, userID string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return user, nil
}

func (s *Store) ReplacePasswordHash(_ context.Context, userID, newHash string) error {
	return s.update(userID, func(u *auth.User) {
		u.PasswordHash = newHash
	})
}

func (s *Store) SetEmailVerified(_ context.Context, userID string) error {
	return s.update(userID, func(u *auth.User) {
		u.EmailVerified = true
	})
}

func (s *Store) EnableTwoFactor(_ context.Context, userID, secret string) error {
	return s.update(userID, func(u *auth.User) {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = secret
	})
}

func (s *Store) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.byID, userID)
	delete(s.byEmail, emailKey(user.Email))

	return nil
}

func (s *Store) update(userID string, mutate func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	mutate(&user)
	s.byID[userID] = user

	return nil
}
