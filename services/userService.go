package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"civicportal/models"
	"civicportal/policy"
	"civicportal/repository"
)

// TokenIssuer signs access tokens for users.
type TokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
}

// UserService handles accounts: registration, login and role management.
type UserService struct {
	users      repository.UserRepository
	tokens     TokenIssuer
	isAdminFor func(email string) bool
	logger     *slog.Logger
	now        func() time.Time
}

// NewUserService builds a UserService. isAdminFor decides whether a newly registered
// email starts with the admin role; nil means never.
func NewUserService(users repository.UserRepository, tokens TokenIssuer, isAdminFor func(string) bool, logger *slog.Logger) *UserService {
	if isAdminFor == nil {
		isAdminFor = func(string) bool { return false }
	}
	return &UserService{users: users, tokens: tokens, isAdminFor: isAdminFor, logger: logger, now: time.Now}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)

	verr := &models.ValidationError{}
	if name == "" {
		verr.Add("name", "is required")
	}
	if email == "" {
		verr.Add("email", "is required")
	}
	if len(in.Password) < 6 {
		verr.Add("password", "must be at least 6 characters")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	role := models.RoleUser
	if s.isAdminFor(email) {
		role = models.RoleAdmin
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	user := &models.User{
		Name:      name,
		Email:     email,
		Password:  in.Password,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.HashPassword(); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID.Hex()),
		slog.String("role", string(role)))
	return user, nil
}

// Login checks credentials and returns a signed token with the user.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	}
	if err != nil {
		return "", nil, err
	}
	if !user.ComparePassword(password) {
		return "", nil, fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, user, nil
}

// Me returns the stored record of the caller.
func (s *UserService) Me(ctx context.Context, actor models.AuthUser) (*models.User, error) {
	if !actor.Authenticated() {
		return nil, models.ErrUnauthorized
	}
	return s.users.FindByID(ctx, actor.ID.Hex())
}

func (s *UserService) ListUsers(ctx context.Context, actor models.AuthUser) ([]models.User, error) {
	if err := policy.Authorize(actor, policy.ActionManageUsers, nil); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// SetRole changes the role of user id. Admins cannot demote themselves.
func (s *UserService) SetRole(ctx context.Context, actor models.AuthUser, id, rawRole string) (*models.User, error) {
	if err := policy.Authorize(actor, policy.ActionManageUsers, nil); err != nil {
		return nil, err
	}

	role := models.Role(strings.ToLower(strings.TrimSpace(rawRole)))
	if !role.Valid() {
		return nil, models.NewValidationError("role", "must be user or admin")
	}
	if id == actor.ID.Hex() && role != models.RoleAdmin {
		return nil, models.NewValidationError("role", "admins cannot remove their own admin role")
	}

	user, err := s.users.UpdateRole(ctx, id, role, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user role changed",
		slog.String("user_id", id),
		slog.String("role", string(role)),
		slog.String("admin_id", actor.ID.Hex()))
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
