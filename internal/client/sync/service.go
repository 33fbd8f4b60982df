package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/boardsync/internal/client/api"
	"github.com/iudanet/boardsync/internal/client/storage"
	pkgapi "github.com/iudanet/boardsync/pkg/api"
)

const (
	defaultMaxRetries = 3
	defaultRetryBase  = 200 * time.Millisecond

	defaultReconnectBase = time.Second
	defaultReconnectCap  = 30 * time.Second
	// maxPushBatch ограничение числа мутаций в одном push
	maxPushBatch = 100
)

// ErrUnauthorized сервер отверг access токен
var ErrUnauthorized = errors.New("access token rejected by server, please login again")

// Result итог одного цикла синхронизации
type Result struct {
	Cookie     *pkgapi.Cookie
	Pushed     int  // отправлено мутаций
	PatchOps   int  // операций патча применено
	Pending    int  // мутаций еще не подтверждено
	FullResync bool // сервер прислал clear
	Restarted  bool // очередь перенумерована под новым ClientID
}

// Service синхронизирует локальную реплику с сервером: push, затем pull
type Service struct {
	apiClient  api.ClientAPI
	replica    storage.ReplicaStorage
	logger     *slog.Logger
	maxRetries uint64
	retryBase  time.Duration

	reconnectBase time.Duration
	reconnectCap  time.Duration
}

// NewService creates a new sync service
func NewService(apiClient api.ClientAPI, replica storage.ReplicaStorage, logger *slog.Logger) *Service {
	return &Service{
		apiClient:  apiClient,
		replica:    replica,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,

		reconnectBase: defaultReconnectBase,
		reconnectCap:  defaultReconnectCap,
	}
}

// Sync отправляет очередь мутаций и применяет патч с сервера
func (s *Service) Sync(ctx context.Context, accessToken string) (*Result, error) {
	identity, err := s.replica.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get replica identity: %w", err)
	}

	result := &Result{}

	pushed, conflict, err := s.push(ctx, accessToken, identity)
	if err != nil {
		return nil, err
	}
	result.Pushed = pushed

	resp, err := s.pull(ctx, accessToken, identity)
	if err != nil {
		return nil, err
	}

	if err := s.replica.ApplyPull(ctx, resp); err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}

	// полный pull уже удалил подтвержденные мутации старого клиента,
	// остаток очереди отправится под новым ClientID
	if conflict {
		restarted, err := s.replica.RestartClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to restart client: %w", err)
		}
		s.logger.Warn("Mutation queue renumbered under new client",
			"old_client_id", identity.ClientID,
			"client_id", restarted.ClientID)
		result.Restarted = true
	}

	pending, err := s.replica.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending mutations: %w", err)
	}

	result.Cookie = resp.Cookie
	result.PatchOps = len(resp.Patch)
	result.Pending = len(pending)
	result.FullResync = len(resp.Patch) > 0 && resp.Patch[0].Op == pkgapi.PatchOpClear

	s.logger.Info("Synchronization completed",
		"pushed", result.Pushed,
		"patch_ops", result.PatchOps,
		"pending", result.Pending,
		"full_resync", result.FullResync)

	return result, nil
}

// push отправляет очередь пакетами. Подтверждение придет в следующем pull.
// conflict сообщает, что сервер отверг последовательность ID клиента.
func (s *Service) push(ctx context.Context, accessToken string, identity storage.Identity) (pushed int, conflict bool, err error) {
	pending, err := s.replica.Pending(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read pending mutations: %w", err)
	}

	for start := 0; start < len(pending); start += maxPushBatch {
		batch := pending[start:min(start+maxPushBatch, len(pending))]
		req := pkgapi.PushRequest{
			ClientGroupID: identity.ClientGroupID,
			Mutations:     batch,
		}

		err := s.withRetry(ctx, func(ctx context.Context) error {
			return s.apiClient.Push(ctx, accessToken, req)
		})
		switch {
		case err == nil:
			pushed += len(batch)
		case api.IsStatus(err, http.StatusConflict):
			// сервер не знает наших предыдущих мутаций: полная пересинхронизация
			s.logger.Warn("Push rejected as out of sequence, dropping cookie", "error", err)
			if err := s.replica.ResetCookie(ctx); err != nil {
				return pushed, true, fmt.Errorf("failed to reset cookie: %w", err)
			}
			return pushed, true, nil
		default:
			return pushed, false, s.wrapErr("push", err)
		}
	}

	return pushed, false, nil
}

func (s *Service) pull(ctx context.Context, accessToken string, identity storage.Identity) (*pkgapi.PullResponse, error) {
	cookie, err := s.replica.Cookie(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie: %w", err)
	}

	req := pkgapi.PullRequest{
		ClientGroupID: identity.ClientGroupID,
		Cookie:        cookie,
	}

	var resp *pkgapi.PullResponse
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.apiClient.Pull(ctx, accessToken, req)
		return err
	})
	if err != nil {
		return nil, s.wrapErr("pull", err)
	}

	return resp, nil
}

func (s *Service) wrapErr(op string, err error) error {
	if api.IsStatus(err, http.StatusUnauthorized) {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// withRetry повторяет запрос при сетевых ошибках и 5xx
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && api.IsRetryable(err) {
			s.logger.Debug("Retrying request", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// PendingCount возвращает количество неподтвержденных мутаций
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	pending, err := s.replica.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending mutations: %w", err)
	}
	return len(pending), nil
}

// Watch держит poke соединение и синхронизируется при каждом poke.
// Первая синхронизация выполняется сразу после подключения.
// Задержка переподключения растет, пока соединения обрываются до первой
// синхронизации, и сбрасывается после рабочего соединения.
// onSync вызывается после каждой попытки; Watch возвращается при отмене ctx
// или отказе сервера в авторизации.
func (s *Service) Watch(ctx context.Context, accessToken string, onSync func(*Result, error)) error {
	reconnect := s.newReconnectBackoff()

	for {
		synced, err := s.watchOnce(ctx, accessToken, onSync)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) || api.IsStatus(err, http.StatusUnauthorized) {
			return fmt.Errorf("watch: %w", ErrUnauthorized)
		}
		if synced {
			reconnect = s.newReconnectBackoff()
		}

		delay, _ := reconnect.Next()
		s.logger.Warn("Poke connection lost, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *Service) newReconnectBackoff() retry.Backoff {
	return retry.WithCappedDuration(s.reconnectCap, retry.NewExponential(s.reconnectBase))
}

// watchOnce обслуживает одно соединение; synced истина, если через него
// прошла хотя бы одна успешная синхронизация
func (s *Service) watchOnce(ctx context.Context, accessToken string, onSync func(*Result, error)) (synced bool, err error) {
	conn, err := s.apiClient.DialPoke(ctx, accessToken)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	pokes := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg pkgapi.PokeMessage
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != pkgapi.PokeTypePoke {
				s.logger.Debug("Ignoring unknown poke message", "data", string(data))
				continue
			}
			// несколько poke подряд схлопываются в одну синхронизацию
			select {
			case pokes <- struct{}{}:
			default:
			}
		}
	}()

	sync := func() error {
		result, err := s.Sync(ctx, accessToken)
		onSync(result, err)
		if err == nil {
			synced = true
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return nil
	}

	if err := sync(); err != nil {
		return synced, err
	}

	for {
		select {
		case <-ctx.Done():
			return synced, ctx.Err()
		case err := <-readErr:
			return synced, err
		case <-pokes:
			if err := sync(); err != nil {
				return synced, err
			}
		}
	}
}
