package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/choraleia/opengpt/pkg/event"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/choraleia/opengpt/pkg/utils"
	"github.com/google/uuid"
)

// ErrInvalidCredentials hides whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service handles signup and login.
type Service struct {
	users   UserStore
	tokens  *Tokens
	emitter *event.Emitter
	logger  *slog.Logger
}

func NewService(users UserStore, tokens *Tokens) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: utils.GetLogger(),
	}
}

// SetEmitter publishes user.signedUp notifications on e.
func (s *Service) SetEmitter(e *event.Emitter) {
	s.emitter = e
}

// Tokens returns the token issuer used by this service.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// Signup creates an account. The request must already be validated.
func (s *Service) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(req.Username),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		s.logger.Error("failed to create user", "email", u.Email, "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user signed up", "user", u.ID)
	s.emitter.Emit(event.UserSignedUpEvent{UserID: u.ID})
	return u, nil
}

// Login verifies credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(*u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
