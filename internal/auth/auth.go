// Package auth signs administrators in and issues the bearer tokens the
// admin endpoints require. Any account that can sign in is an
// administrator; there are no finer roles.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
)

// AccountStore looks admin accounts up by email. SignIn folds a miss
// into errs.ErrInvalidCredentials so callers cannot probe which emails
// exist.
type AccountStore interface {
	GetAdminByEmail(ctx context.Context, email string) (*model.AdminAccount, error)
}

type Service struct {
	accounts AccountStore
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewService(accounts AccountStore, secret string, ttl time.Duration) *Service {
	return &Service{accounts: accounts, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SignIn checks the credentials and returns a signed session token. Bad
// email and bad password produce the same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, error) {
	acct, err := s.accounts.GetAdminByEmail(ctx, email)
	if err != nil {
		return "", errs.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return "", errs.ErrInvalidCredentials
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   acct.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a bearer token and returns the admin email it was
// issued to.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errs.ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errs.ErrInvalidCredentials
	}
	return claims.Subject, nil
}

// HashPassword produces the bcrypt hash stored on admin accounts.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
