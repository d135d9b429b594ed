// Package service: authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Normalise and validate registration input
//   - Hash passwords, verify them on login, issue tokens
//   - Make every login failure look the same to the client
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// MaxUsernameLength matches the column width the mobile client was built against.
const MaxUsernameLength = 255

// emailPattern is deliberately loose: something@something.something, no spaces.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
//   - recorder   Recorder                   → auth attempt metrics (optional)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	recorder  Recorder
}

// NewAuthService creates an AuthService with all required dependencies.
// recorder may be nil.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
	recorder Recorder,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		recorder:  recorderOrNop(recorder),
	}
}

// AuthResult is returned by authentication operations.
// It bundles the user record and the issued JWT together so the handler can
// respond in one step. User never carries the password hash.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an account and signs the new user in.
//
// Email is trimmed and lower-cased, username is trimmed. A duplicate
// username or email surfaces as apperror.ErrConflict from the store.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	email = normaliseEmail(email)

	if err := validateRegistration(username, email, password); err != nil {
		s.recorder.AuthAttempt("register", "invalid")
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.recorder.AuthAttempt("register", "conflict")
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}
	user.PasswordHash = ""

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	s.recorder.AuthAttempt("register", "success")
	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and issues a token.
//
// SAME ANSWER FOR EVERY FAILURE:
// An unknown email and a wrong password both return apperror.InvalidCredentials()
// with the same message. For the unknown email a throwaway bcrypt compare
// still runs, so the two cases also take about the same time.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normaliseEmail(email)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Burn(password)
			s.recorder.AuthAttempt("login", "failure")
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.recorder.AuthAttempt("login", "failure")
		s.logger.Debug("login rejected", slog.String("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}
	user.PasswordHash = ""

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	s.recorder.AuthAttempt("login", "success")
	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &AuthResult{User: user, Token: token}, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(username, email, password string) error {
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperror.ValidationFailed("email", "invalid email format")
	}
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}
