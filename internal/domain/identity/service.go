package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/dischargeflow/dischargeflow/internal/platform/auth"
)

type Service struct {
	users  UserRepository
	issuer *auth.TokenIssuer
}

func NewService(users UserRepository, issuer *auth.TokenIssuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Register creates a new staff account. The caller's authorization (admin
// only) is enforced at the route level.
func (s *Service) Register(ctx context.Context, email, name, role, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("valid email is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !auth.ValidRole(role) {
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("email already registered: %s", email)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:          email,
		Name:           name,
		Role:           role,
		HashedPassword: hash,
		IsActive:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies credentials and returns a signed access token with the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}
	if !auth.CheckPassword(u.HashedPassword, password) {
		return "", nil, fmt.Errorf("invalid credentials")
	}
	if !u.IsActive {
		return "", nil, fmt.Errorf("account is deactivated")
	}

	token, err := s.issuer.Issue(u.ID.String(), u.Email, u.Name, u.Role)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// GetByEmail returns the user for an email address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// ListUsers returns a page of staff accounts.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}
