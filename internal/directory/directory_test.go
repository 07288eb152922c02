package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/cdsso/internal/identity"
)

func TestMemoryAuthenticate(t *testing.T) {
	dir := NewMemory()
	require.NoError(t, dir.AddWithPassword(User{ID: 42, Login: "Alice", Capabilities: []string{CapRead}}, "s3cret"))

	u, err := dir.Authenticate(context.Background(), " alice ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, identity.UserID(42), u.ID)
	assert.Equal(t, "alice", u.Login)

	_, err = dir.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = dir.Authenticate(context.Background(), "bob", "s3cret")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryGet(t *testing.T) {
	dir := NewMemory()
	require.NoError(t, dir.AddWithPassword(User{ID: 7, Login: "carol"}, "pw"))

	u, err := dir.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Login)

	u.Login = "mallory"
	again, err := dir.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "carol", again.Login, "callers get copies")

	_, err = dir.Get(context.Background(), 8)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryAddValidation(t *testing.T) {
	dir := NewMemory()
	hash := []byte("$2a$10$abcdefghijklmnopqrstuv")

	assert.Error(t, dir.Add(User{Login: "x", PasswordHash: hash}), "missing id")
	assert.Error(t, dir.Add(User{ID: 1, PasswordHash: hash}), "missing login")
	assert.Error(t, dir.Add(User{ID: 1, Login: "x"}), "missing hash")

	require.NoError(t, dir.Add(User{ID: 1, Login: "x", PasswordHash: hash}))
	assert.Error(t, dir.Add(User{ID: 2, Login: "X", PasswordHash: hash}), "duplicate login")
	assert.Error(t, dir.Add(User{ID: 1, Login: "y", PasswordHash: hash}), "duplicate id")
}

func TestUserCapabilities(t *testing.T) {
	u := User{Capabilities: []string{CapRead}, PrimarySiteID: 3}
	assert.True(t, u.Can(CapRead))
	assert.False(t, u.Can(CapEditPosts))
	assert.True(t, u.HasActiveSite())

	admin := User{SuperAdmin: true}
	assert.True(t, admin.Can(CapEditPosts))
	assert.False(t, admin.HasActiveSite())
}
