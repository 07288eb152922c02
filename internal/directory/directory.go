// Package directory authenticates users of the login form and answers
// capability questions about them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgellow/cdsso/internal/crypto"
	"github.com/dgellow/cdsso/internal/identity"
)

var (
	// ErrUserNotFound is returned when a user doesn't exist
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when the password does not match
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Capabilities checked by the post-login redirect.
const (
	CapRead      = "read"
	CapEditPosts = "edit_posts"
)

// User is a platform user.
type User struct {
	ID            identity.UserID
	Login         string
	PasswordHash  []byte
	Capabilities  []string
	PrimarySiteID int64
	SuperAdmin    bool
}

// Can reports whether the user holds capability. Super admins hold all.
func (u *User) Can(capability string) bool {
	if u.SuperAdmin {
		return true
	}
	for _, c := range u.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasActiveSite reports whether the user belongs to any site.
func (u *User) HasActiveSite() bool {
	return u.PrimarySiteID > 0
}

// Directory looks users up.
type Directory interface {
	Authenticate(ctx context.Context, login, password string) (*User, error)
	Get(ctx context.Context, id identity.UserID) (*User, error)
}

// Memory is a Directory seeded at start-up.
type Memory struct {
	mu      sync.RWMutex
	byID    map[identity.UserID]*User
	byLogin map[string]*User
}

var _ Directory = (*Memory)(nil)

// NewMemory creates an empty directory
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[identity.UserID]*User),
		byLogin: make(map[string]*User),
	}
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// Add registers u. Logins are case insensitive and must be unique.
func (m *Memory) Add(u User) error {
	if !u.ID.Valid() {
		return fmt.Errorf("user %q has no id", u.Login)
	}
	login := normalizeLogin(u.Login)
	if login == "" {
		return fmt.Errorf("user %d has no login", u.ID)
	}
	if len(u.PasswordHash) == 0 {
		return fmt.Errorf("user %q has no password hash", login)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byLogin[login]; exists {
		return fmt.Errorf("duplicate login %q", login)
	}
	if _, exists := m.byID[u.ID]; exists {
		return fmt.Errorf("duplicate user id %d", u.ID)
	}
	u.Login = login
	m.byID[u.ID] = &u
	m.byLogin[login] = &u
	return nil
}

// AddWithPassword hashes password and registers u.
func (m *Memory) AddWithPassword(u User, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password for %q: %w", u.Login, err)
	}
	u.PasswordHash = hash
	return m.Add(u)
}

func (m *Memory) Authenticate(_ context.Context, login, password string) (*User, error) {
	m.mu.RLock()
	u, ok := m.byLogin[normalizeLogin(login)]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrUserNotFound
	}
	if !crypto.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) Get(_ context.Context, id identity.UserID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
