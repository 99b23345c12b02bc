package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"monasterywatch/internal/apperr"
	"monasterywatch/internal/config"
	"monasterywatch/internal/ids"
	"monasterywatch/internal/models"
	"monasterywatch/internal/repository"
	"monasterywatch/internal/security"
)

type UserCatalog interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

type AuthService struct {
	users UserCatalog
	cfg   *config.AppConfig
	log   zerolog.Logger
}

func NewAuthService(users UserCatalog, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{users: users, cfg: cfg, log: log}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	AccessToken string
	User        models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, apperr.InvalidArgument("email and password are required")
	}
	if len(input.Password) < 8 {
		return AuthResult{}, apperr.InvalidArgument("password must be at least 8 characters")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, apperr.New(apperr.KindConflict, "email already registered")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, apperr.Wrap(apperr.KindStorage, "check existing user", err)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(input.DisplayName),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, apperr.Wrap(apperr.KindStorage, "create user", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return s.issueToken(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, apperr.InvalidArgument("invalid credentials")
		}
		return AuthResult{}, apperr.Wrap(apperr.KindStorage, "load user", err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, apperr.InvalidArgument("invalid credentials")
	}

	return s.issueToken(user)
}

func (s *AuthService) GetUser(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("user not found")
		}
		return models.User{}, apperr.Wrap(apperr.KindStorage, "load user", err)
	}
	return user, nil
}

func (s *AuthService) issueToken(user models.User) (AuthResult, error) {
	token, err := security.GenerateAccessToken(s.cfg.Security.JWTSecret, user.ID, user.Email, s.cfg.Security.JWTAccessTTL)
	if err != nil {
		return AuthResult{}, apperr.Wrap(apperr.KindInternal, "issue access token", err)
	}
	return AuthResult{AccessToken: token, User: user}, nil
}
