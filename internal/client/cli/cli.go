package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/iudanet/boardsync/internal/client/api"
	"github.com/iudanet/boardsync/internal/client/auth"
	"github.com/iudanet/boardsync/internal/client/data"
	"github.com/iudanet/boardsync/internal/client/iocli"
	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/client/storage/boltdb"
	"github.com/iudanet/boardsync/internal/client/sync"
	"github.com/iudanet/boardsync/internal/config"
)

const (
	defaultServerURL = "http://localhost:8080"
	defaultDBPath    = "boardsync-client.db"

	// EnvPassword переменная окружения с паролем для register/login
	EnvPassword = "BOARDSYNC_PASSWORD"
)

// BuildInfo версия клиента, задается через ldflags
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// options глобальные флаги
type options struct {
	serverURL string
	dbPath    string
	logLevel  string
}

// Passwords источники пароля, кроме переменной окружения и prompt
type Passwords struct {
	FromFile string
	FromArgs string
}

// Cli связывает команды с сервисами клиента.
// Сервисы создаются в PersistentPreRunE, когда флаги уже разобраны.
type Cli struct {
	io     iocli.IO
	logOut io.Writer
	getenv func(string) string
	opts   options

	store       *boltdb.Storage
	apiClient   api.ClientAPI
	authService *auth.Service
	dataService *data.Service
	syncService *sync.Service
	logger      *slog.Logger
}

// New creates a CLI writing user output to out and logs to logOut
func New(out iocli.IO, logOut io.Writer) *Cli {
	return &Cli{
		io:     out,
		logOut: logOut,
		getenv: os.Getenv,
	}
}

// init открывает локальную реплику и собирает сервисы
func (c *Cli) init(ctx context.Context) error {
	if c.store != nil {
		return nil
	}

	logCfg := config.LogConfig{Level: c.opts.logLevel, Format: "text"}
	if _, err := logCfg.SlogLevel(); err != nil {
		return err
	}
	c.logger = logCfg.NewLogger(c.logOut)

	store, err := boltdb.New(ctx, c.opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}
	c.store = store

	c.apiClient = api.NewClient(c.opts.serverURL)
	c.authService = auth.NewService(c.apiClient, store, store, c.logger)
	c.dataService = data.NewService(store)
	c.syncService = sync.NewService(c.apiClient, store, c.logger)
	return nil
}

// Close закрывает локальную базу, если она была открыта
func (c *Cli) Close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// session возвращает действующую сессию или понятную ошибку
func (c *Cli) session(ctx context.Context) (*storage.AuthData, error) {
	authData, err := c.authService.Session(ctx)
	if err != nil {
		return nil, err
	}
	return authData, nil
}

// getPassword читает пароль по приоритету:
// 1. Переменная окружения BOARDSYNC_PASSWORD
// 2. Файл из --password-file
// 3. Флаг --password
// 4. Интерактивный ввод
func (c *Cli) getPassword(passwords Passwords) (string, error) {
	if envPassword := c.getenv(EnvPassword); envPassword != "" {
		return envPassword, nil
	}

	if passwords.FromFile != "" {
		content, err := os.ReadFile(passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", errors.New("password file is empty")
		}
		return password, nil
	}

	if passwords.FromArgs != "" {
		return passwords.FromArgs, nil
	}

	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	return password, nil
}

// getUsername берет username из флага или спрашивает
func (c *Cli) getUsername(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return "", fmt.Errorf("failed to read username: %w", err)
	}
	return username, nil
}
