package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/storage"
)

type mockAdminUsers struct {
	mu    sync.Mutex
	users map[string]*models.AdminUser
}

func newMockAdminUsers() *mockAdminUsers {
	return &mockAdminUsers{users: make(map[string]*models.AdminUser)}
}

func (m *mockAdminUsers) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockAdminUsers) CreateIfMissing(ctx context.Context, username, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return false, nil
	}
	m.users[username] = &models.AdminUser{ID: int64(len(m.users) + 1), Username: username, PasswordHash: hash}
	return true, nil
}

func TestAuth_SeedAndLogin(t *testing.T) {
	users := newMockAdminUsers()
	auth := NewAuthService(users, "test-secret", time.Hour)
	ctx := context.Background()

	require.NoError(t, auth.SeedAdmin(ctx, "root", "hunter2"))
	firstHash := users.users["root"].PasswordHash
	require.NoError(t, auth.SeedAdmin(ctx, "root", "changed"))
	assert.Equal(t, firstHash, users.users["root"].PasswordHash, "existing admin is not overwritten")

	token, err := auth.Login(ctx, "root", "hunter2")
	require.NoError(t, err)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Username)
	assert.Equal(t, "root", claims.Subject)
}

func TestAuth_InvalidCredentials(t *testing.T) {
	users := newMockAdminUsers()
	auth := NewAuthService(users, "test-secret", time.Hour)
	require.NoError(t, auth.SeedAdmin(context.Background(), "root", "hunter2"))

	for _, creds := range [][2]string{{"root", "wrong"}, {"nobody", "hunter2"}} {
		_, err := auth.Login(context.Background(), creds[0], creds[1])
		require.Error(t, err)
		assert.Equal(t, 401, apperrors.GetHTTPStatusCode(err))
		assert.Contains(t, err.Error(), "Invalid credentials")
	}

	_, err := auth.Login(context.Background(), "", "")
	assert.Equal(t, 400, apperrors.GetHTTPStatusCode(err))
}

func TestAuth_SeedSkipsWhenUnset(t *testing.T) {
	users := newMockAdminUsers()
	auth := NewAuthService(users, "s", time.Hour)
	require.NoError(t, auth.SeedAdmin(context.Background(), "", ""))
	assert.Empty(t, users.users)
}

func TestAuth_ParseTokenRejects(t *testing.T) {
	auth := NewAuthService(newMockAdminUsers(), "test-secret", time.Hour)
	now := time.Now()

	sign := func(method jwt.SigningMethod, key interface{}, claims AdminClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := AdminClaims{Username: "root", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}
	expired := AdminClaims{Username: "root", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}}
	noExpiry := AdminClaims{Username: "root"}
	noUser := AdminClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}

	tests := map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), valid),
		"wrong alg":    sign(jwt.SigningMethodHS512, []byte("test-secret"), valid),
		"expired":      sign(jwt.SigningMethodHS256, []byte("test-secret"), expired),
		"no expiry":    sign(jwt.SigningMethodHS256, []byte("test-secret"), noExpiry),
		"no username":  sign(jwt.SigningMethodHS256, []byte("test-secret"), noUser),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ParseToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := auth.ParseToken(sign(jwt.SigningMethodHS256, []byte("test-secret"), valid))
	assert.NoError(t, err)
}
