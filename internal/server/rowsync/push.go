package rowsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
	"github.com/iudanet/boardsync/pkg/api"
)

// MutationFailure мутация, бизнес-логика которой упала.
// Такая мутация засчитана (last_mutation_id продвинут), но эффекта нет.
type MutationFailure struct {
	Err      error
	ClientID string
	ID       int64
}

// PushResult итог обработки пакета мутаций
type PushResult struct {
	Affected models.Affected
	Failures []MutationFailure
	Applied  int
	Skipped  int
}

// Push applies req.Mutations strictly in order on behalf of userID.
//
// A mutation whose handler fails is replayed once in error mode: no
// business effect, but last_mutation_id still advances, and the failure is
// reported in PushResult. Authorization and sequence errors abort the
// remaining mutations and are returned together with the partial result.
func (s *Service) Push(ctx context.Context, userID string, req *api.PushRequest) (*PushResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}

	unlock, err := s.locks.lock(ctx, req.ClientGroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &PushResult{Affected: models.Affected{}}
	defer func() {
		if !result.Affected.IsEmpty() {
			s.notifier.Notify(userID)
		}
	}()

	for _, wire := range req.Mutations {
		m := models.Mutation{
			ClientID: wire.ClientID,
			Name:     wire.Name,
			Args:     wire.Args,
			ID:       wire.ID,
		}

		outcome, affected, err := s.processMutation(ctx, userID, req.ClientGroupID, m, false)
		if err == nil {
			s.count(result, outcome)
			result.Affected.Merge(affected)
			continue
		}

		if !IsKind(err, KindBusiness) {
			s.metrics.ObserveMutation(MutationRejected)
			s.logger.Warn("Push aborted",
				"client_group_id", req.ClientGroupID,
				"client_id", m.ClientID,
				"mutation_id", m.ID,
				"error", err)
			return result, err
		}

		s.logger.Warn("Mutation failed, replaying in error mode",
			"client_group_id", req.ClientGroupID,
			"client_id", m.ClientID,
			"mutation_id", m.ID,
			"name", m.Name,
			"error", err)

		if _, _, err := s.processMutation(ctx, userID, req.ClientGroupID, m, true); err != nil {
			s.metrics.ObserveMutation(MutationRejected)
			return result, fmt.Errorf("failed to record mutation %d in error mode: %w", m.ID, err)
		}

		s.metrics.ObserveMutation(MutationFailed)
		result.Failures = append(result.Failures, MutationFailure{
			ClientID: m.ClientID,
			ID:       m.ID,
			Err:      errors.Unwrap(err),
		})
	}

	s.logger.Info("Push processed",
		"client_group_id", req.ClientGroupID,
		"mutations", len(req.Mutations),
		"applied", result.Applied,
		"skipped", result.Skipped,
		"failed", len(result.Failures),
		"affected", result.Affected.Count())

	return result, nil
}

func (s *Service) count(result *PushResult, outcome string) {
	switch outcome {
	case MutationApplied:
		result.Applied++
	case MutationSkipped:
		result.Skipped++
	}
	s.metrics.ObserveMutation(outcome)
}

// processMutation обрабатывает одну мутацию в отдельной транзакции.
// Ошибка обработчика возвращается как KindBusiness, транзакция откатывается.
func (s *Service) processMutation(
	ctx context.Context,
	userID, clientGroupID string,
	m models.Mutation,
	errorMode bool,
) (string, models.Affected, error) {
	var (
		outcome  string
		affected models.Affected
	)

	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			outcome, affected, err = s.mutationTx(ctx, tx, userID, clientGroupID, m, errorMode)
			return err
		})
	})

	return outcome, affected, err
}

func (s *Service) mutationTx(
	ctx context.Context,
	tx storage.Tx,
	userID, clientGroupID string,
	m models.Mutation,
	errorMode bool,
) (string, models.Affected, error) {
	group, err := tx.GetOrCreateClientGroup(ctx, clientGroupID, userID)
	if err != nil {
		return "", nil, err
	}
	if group.CreatedBy != userID {
		return "", nil, AuthorizationErrorf("client group %s belongs to another user", clientGroupID)
	}

	client, err := tx.GetOrCreateClient(ctx, m.ClientID, clientGroupID)
	if err != nil {
		return "", nil, err
	}
	if client.ClientGroupID != clientGroupID {
		return "", nil, AuthorizationErrorf("client %s belongs to another client group", m.ClientID)
	}

	expected := client.LastMutationID + 1

	if m.ID < expected {
		s.logger.Debug("Mutation already processed, skipping",
			"client_id", m.ClientID,
			"mutation_id", m.ID,
			"last_mutation_id", client.LastMutationID)
		return MutationSkipped, models.Affected{}, nil
	}

	if m.ID > expected {
		return "", nil, SequenceErrorf("mutation %d of client %s is from the future, expected %d",
			m.ID, m.ClientID, expected)
	}

	affected := models.Affected{}
	if !errorMode {
		affected, err = s.dispatcher.Dispatch(ctx, tx, userID, m)
		if err != nil {
			if storage.IsTransient(err) {
				return "", nil, err
			}
			return "", nil, &Error{Kind: KindBusiness, Err: err}
		}
	}

	client.LastMutationID = expected
	if err := tx.PutClientGroup(ctx, group); err != nil {
		return "", nil, err
	}
	if err := tx.PutClient(ctx, client); err != nil {
		return "", nil, err
	}

	return MutationApplied, affected, nil
}
