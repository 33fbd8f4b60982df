package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/boardsync/internal/client/api"
	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/validation"
	pkgapi "github.com/iudanet/boardsync/pkg/api"
)

// ErrNotAuthenticated нет сохраненной сессии или токен истек
var ErrNotAuthenticated = errors.New("not authenticated, please run 'boardsync login' first")

// Replica часть реплики, которую нужно сбросить при смене пользователя
type Replica interface {
	Reset(ctx context.Context) error
}

// Service предоставляет функции авторизации и хранит сессию
type Service struct {
	apiClient api.ClientAPI
	store     storage.AuthStorage
	replica   Replica
	logger    *slog.Logger
	now       func() time.Time
}

// NewService создает новый сервис авторизации
func NewService(apiClient api.ClientAPI, store storage.AuthStorage, replica Replica, logger *slog.Logger) *Service {
	return &Service{
		apiClient: apiClient,
		store:     store,
		replica:   replica,
		logger:    logger,
		now:       time.Now,
	}
}

// Register регистрирует нового пользователя
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return "", fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return "", fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("registration failed: %w", err)
	}

	return resp.UserID, nil
}

// Login выполняет аутентификацию и сохраняет сессию.
// Если раньше здесь работал другой пользователь, локальная реплика сбрасывается.
func (s *Service) Login(ctx context.Context, username, password string) (*storage.AuthData, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	prev, err := s.store.GetAuth(ctx)
	switch {
	case errors.Is(err, storage.ErrAuthNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read previous session: %w", err)
	}
	if prev == nil || prev.UserID != resp.UserID {
		if err := s.replica.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset local replica: %w", err)
		}
		s.logger.Debug("Local replica reset for new user", "user_id", resp.UserID)
	}

	auth := &storage.AuthData{
		Username:    username,
		UserID:      resp.UserID,
		AccessToken: resp.AccessToken,
		ExpiresAt:   s.now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix(),
	}
	if err := s.store.SaveAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("Logged in", "username", username, "user_id", resp.UserID)
	return auth, nil
}

// Session возвращает действующую сессию или ErrNotAuthenticated
func (s *Service) Session(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// после logout остается только пользователь, без токена
	if auth.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}

	if s.now().Unix() >= auth.ExpiresAt {
		return auth, fmt.Errorf("%w: session expired", ErrNotAuthenticated)
	}

	return auth, nil
}

// Logout забывает токен, но помнит пользователя. Реплика и очередь мутаций остаются:
// неотправленные мутации уйдут после следующего входа того же пользователя.
func (s *Service) Logout(ctx context.Context) error {
	auth, err := s.Session(ctx)
	if err != nil && auth == nil {
		return err
	}

	if err := s.store.SaveAuth(ctx, &storage.AuthData{
		Username: auth.Username,
		UserID:   auth.UserID,
	}); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
