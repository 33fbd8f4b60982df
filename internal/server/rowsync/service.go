// Package rowsync implements the row-version sync protocol: pull computes a
// patch from the difference between the client's last CVR and the current
// visible versions, push applies ordered client mutations exactly once.
package rowsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

// Dispatcher применяет одну мутацию к доменным строкам
type Dispatcher interface {
	Dispatch(ctx context.Context, tx storage.DomainStorage, userID string, m models.Mutation) (models.Affected, error)
}

// Notifier сообщает клиентам пользователя, что пора сделать pull
type Notifier interface {
	Notify(userID string)
}

// Metrics принимает наблюдения о pull и push
type Metrics interface {
	ObservePull(outcome string, patchOps int, elapsed time.Duration)
	ObserveMutation(outcome string)
}

// Исходы pull и мутаций для метрик и логов
const (
	PullOutcomeNoop   = "noop"
	PullOutcomePatch  = "patch"
	PullOutcomeFailed = "failed"

	MutationApplied  = "applied"
	MutationSkipped  = "skipped"
	MutationFailed   = "failed"
	MutationRejected = "rejected"
)

const (
	defaultMaxRetries = 5
	defaultRetryBase  = 20 * time.Millisecond
)

// Service обрабатывает pull и push
type Service struct {
	logger     *slog.Logger
	store      storage.TxRunner
	cvrs       storage.CVRStorage
	dispatcher Dispatcher
	notifier   Notifier
	metrics    Metrics
	locks      *groupLocks
	maxRetries uint64
	retryBase  time.Duration
}

// Option настраивает Service
type Option func(*Service)

// WithNotifier sets the poke notifier called after a push touched rows.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetry sets the bounded backoff used for transient storage errors.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(s *Service) {
		s.maxRetries = maxRetries
		s.retryBase = base
	}
}

// NewService creates a new sync service
func NewService(
	logger *slog.Logger,
	store storage.TxRunner,
	cvrs storage.CVRStorage,
	dispatcher Dispatcher,
	opts ...Option,
) *Service {
	s := &Service{
		logger:     logger,
		store:      store,
		cvrs:       cvrs,
		dispatcher: dispatcher,
		notifier:   nopNotifier{},
		metrics:    nopMetrics{},
		locks:      newGroupLocks(),
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withRetry повторяет fn, пока хранилище возвращает временные ошибки
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if storage.IsTransient(err) {
			s.logger.Debug("Retrying after transient storage error", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

type nopMetrics struct{}

func (nopMetrics) ObservePull(string, int, time.Duration) {}
func (nopMetrics) ObserveMutation(string)                 {}
