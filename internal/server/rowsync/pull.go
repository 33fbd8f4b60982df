package rowsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/boardsync/internal/cvr"
	"github.com/iudanet/boardsync/internal/ids"
	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
	"github.com/iudanet/boardsync/pkg/api"
)

// pullSnapshot результат транзакционной части pull
type pullSnapshot struct {
	next  cvr.CVR
	diff  cvr.Diff
	rows  map[models.Collection][]models.Record
	order int64
}

// Pull returns the patch that brings the client group of userID from the
// state described by req.Cookie to the current visible state.
func (s *Service) Pull(ctx context.Context, userID string, req *api.PullRequest) (*api.PullResponse, error) {
	start := time.Now()

	resp, err := s.pull(ctx, userID, req)
	if err != nil {
		s.metrics.ObservePull(PullOutcomeFailed, 0, time.Since(start))
		return nil, err
	}

	outcome := PullOutcomePatch
	if len(resp.Patch) == 0 && req.Cookie != nil && *resp.Cookie == *req.Cookie {
		outcome = PullOutcomeNoop
	}
	s.metrics.ObservePull(outcome, len(resp.Patch), time.Since(start))

	return resp, nil
}

func (s *Service) pull(ctx context.Context, userID string, req *api.PullRequest) (*api.PullResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}

	unlock, err := s.locks.lock(ctx, req.ClientGroupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// prev == nil: снимка нет (первая синхронизация или истек TTL)
	var prev cvr.CVR
	if req.Cookie != nil {
		prev, err = s.cvrs.GetCVR(ctx, req.ClientGroupID, req.Cookie.CVRID, req.Cookie.Order)
		if errors.Is(err, storage.ErrCVRNotFound) {
			s.logger.Info("CVR not found, forcing full resync",
				"client_group_id", req.ClientGroupID,
				"cvr_id", req.Cookie.CVRID,
				"order", req.Cookie.Order)
			prev = nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to load cvr: %w", err)
		}
	}

	var snap *pullSnapshot
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			snap, err = s.pullTx(ctx, tx, userID, req, prev)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	// Пустой diff при существующем снимке: cookie не меняется, ничего не пишем
	if snap == nil {
		return &api.PullResponse{
			Cookie:                req.Cookie,
			LastMutationIDChanges: map[string]int64{},
			Patch:                 []api.PatchOp{},
		}, nil
	}

	// cvrID переиспользуется, только если снимок найден у этой группы:
	// чужой или устаревший cookie не должен перезаписать чужой снимок
	cvrID := ids.NewCVRID()
	if prev != nil {
		cvrID = req.Cookie.CVRID
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.cvrs.PutCVR(ctx, req.ClientGroupID, cvrID, snap.order, snap.next)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store cvr: %w", err)
	}

	patch, err := buildPatch(prev == nil, snap)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]int64, len(snap.diff.Puts(models.CollectionClient)))
	for _, clientID := range snap.diff.Puts(models.CollectionClient) {
		changes[clientID] = snap.next[models.CollectionClient][clientID]
	}

	s.logger.Debug("Pull processed",
		"client_group_id", req.ClientGroupID,
		"order", snap.order,
		"patch_ops", len(patch),
		"lmid_changes", len(changes))

	return &api.PullResponse{
		Cookie:                &api.Cookie{Order: snap.order, CVRID: cvrID},
		LastMutationIDChanges: changes,
		Patch:                 patch,
	}, nil
}

// pullTx читает проекции, считает diff и увеличивает cvr_version.
// Возвращает nil, если снимок был и diff пустой.
func (s *Service) pullTx(ctx context.Context, tx storage.Tx, userID string, req *api.PullRequest, prev cvr.CVR) (*pullSnapshot, error) {
	group, err := tx.GetOrCreateClientGroup(ctx, req.ClientGroupID, userID)
	if err != nil {
		return nil, err
	}
	if group.CreatedBy != userID {
		return nil, AuthorizationErrorf("client group %s belongs to another user", req.ClientGroupID)
	}

	next, err := readVersions(ctx, tx, userID, req.ClientGroupID)
	if err != nil {
		return nil, err
	}

	diff := cvr.Calculate(prev, next)
	if prev != nil && diff.IsEmpty() {
		return nil, nil
	}

	rows, err := readRows(ctx, tx, diff)
	if err != nil {
		return nil, err
	}

	var cookieOrder int64
	if req.Cookie != nil {
		cookieOrder = req.Cookie.Order
	}
	group.CVRVersion = max(cookieOrder, group.CVRVersion) + 1

	if err := tx.PutClientGroup(ctx, group); err != nil {
		return nil, err
	}

	return &pullSnapshot{next: next, diff: diff, rows: rows, order: group.CVRVersion}, nil
}

// readVersions параллельно читает проекции всех коллекций и клиентов группы
func readVersions(ctx context.Context, tx storage.LedgerStorage, userID, clientGroupID string) (cvr.CVR, error) {
	next := cvr.CVR{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range models.Collections() {
		g.Go(func() error {
			versions, err := tx.ListVersions(gctx, collection, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			next[collection] = cvr.EntriesFromVersions(versions)
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		versions, err := tx.ListClientVersions(gctx, clientGroupID)
		if err != nil {
			return err
		}
		mu.Lock()
		next[models.CollectionClient] = cvr.EntriesFromVersions(versions)
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return next, nil
}

// readRows загружает полные строки для puts каждой доменной коллекции
func readRows(ctx context.Context, tx storage.LedgerStorage, diff cvr.Diff) (map[models.Collection][]models.Record, error) {
	rows := make(map[models.Collection][]models.Record)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range models.Collections() {
		puts := diff.Puts(collection)
		if len(puts) == 0 {
			continue
		}
		g.Go(func() error {
			records, err := tx.GetRows(gctx, collection, puts)
			if err != nil {
				return err
			}
			mu.Lock()
			rows[collection] = records
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rows, nil
}

// buildPatch собирает патч: clear для первой синхронизации, затем del и put
func buildPatch(firstSync bool, snap *pullSnapshot) ([]api.PatchOp, error) {
	patch := []api.PatchOp{}
	if firstSync {
		patch = append(patch, api.PatchOp{Op: api.PatchOpClear})
	}

	for _, collection := range models.Collections() {
		for _, id := range snap.diff.Dels(collection) {
			patch = append(patch, api.PatchOp{Op: api.PatchOpDel, Key: collection.Key(id)})
		}
		for _, record := range snap.rows[collection] {
			value, err := json.Marshal(record)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s row: %w", collection, err)
			}
			patch = append(patch, api.PatchOp{
				Op:    api.PatchOpPut,
				Key:   collection.Key(record.RecordID()),
				Value: value,
			})
		}
	}

	return patch, nil
}
