package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks
var ErrInvalidToken = errors.New("invalid or expired token")

// AdminUserStore persists admin accounts
type AdminUserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	CreateIfMissing(ctx context.Context, username, passwordHash string) (bool, error)
}

// AdminClaims are the JWT claims issued to admins
type AdminClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService issues and checks admin tokens
type AuthService struct {
	users  AdminUserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users AdminUserStore, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Login checks the credentials and returns a signed token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", apperrors.NewValidationError("username and password required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.NewUnauthorizedError("Invalid credentials")
		}
		return "", apperrors.NewDatabaseError("load admin user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logging.FromContext(ctx).WithField("username", username).Warn("Admin login rejected")
		return "", apperrors.NewUnauthorizedError("Invalid credentials")
	}

	return s.issue(user.Username)
}

// ParseToken validates an HS256 token and returns its claims
func (s *AuthService) ParseToken(tokenStr string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SeedAdmin creates the bootstrap admin when it does not exist yet
func (s *AuthService) SeedAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	created, err := s.users.CreateIfMissing(ctx, username, string(hash))
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	if created {
		logging.FromContext(ctx).WithField("username", username).Info("Seeded admin user")
	}
	return nil
}

func (s *AuthService) issue(username string) (string, error) {
	now := s.now()
	claims := AdminClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", apperrors.NewInternalError("failed to sign token", err)
	}
	return signed, nil
}
