package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"feedhub/internal/auth"
	"feedhub/internal/models"
	"feedhub/internal/observability"
	"feedhub/internal/repository"
	"feedhub/internal/validation"
)

const (
	msgNotAuthenticated = "Not authenticated!"
	msgNotAuthorized    = "Not authorized!"
	msgWrongCredentials = "Wrong email or password!"
	msgEmailExists      = "E-Mail address already exists!"
)

// requireAuth is the first check of every identity-scoped operation.
func requireAuth(ac auth.Context) error {
	if !ac.Authenticated || ac.UserID == 0 {
		return models.NewUnauthorizedError(msgNotAuthenticated)
	}
	return nil
}

// RegisterInput is the signup payload.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=5"`
}

// AuthResult is returned by a successful login.
type AuthResult struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// AuthService registers identities and exchanges credentials for tokens.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenIssuer
	bcryptCost int
}

// NewAuthService creates an AuthService. A cost of 0 uses bcrypt.DefaultCost.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenIssuer, bcryptCost int) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, tokens: tokens, bcryptCost: bcryptCost}
}

// Register creates a user with a hashed password.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	span, ctx := observability.StartServiceSpan(ctx, "AuthService", "Register")
	defer span.End()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Check(in, "Validation failed."); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError(msgEmailExists)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Email:    in.Email,
		Name:     in.Name,
		Password: string(hashed),
		Status:   models.DefaultStatus,
		PostIDs:  []uint{},
	}
	if err := s.users.Create(ctx, user); err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.L().InfoContext(ctx, "user registered", slog.Uint64("user_id", uint64(user.ID)))
	return user, nil
}

// Authenticate verifies credentials and issues a bearer token.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	span, ctx := observability.StartServiceSpan(ctx, "AuthService", "Authenticate")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError(msgWrongCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			observability.L().WarnContext(ctx, "password hash check failed",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.String("error", err.Error()),
			)
		}
		return nil, models.NewUnauthorizedError(msgWrongCredentials)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{Token: token, UserID: strconv.FormatUint(uint64(user.ID), 10)}, nil
}
