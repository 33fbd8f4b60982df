package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/boardsync/internal/cvr"
	"github.com/iudanet/boardsync/internal/server/storage"
)

// GetCVR loads a snapshot issued to clientGroupID
func (s *Storage) GetCVR(ctx context.Context, clientGroupID, cvrID string, order int64) (cvr.CVR, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM sync_cvrs
		WHERE id = ? AND client_group_id = ? AND cvr_order = ?`,
		cvrID, clientGroupID, order,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrCVRNotFound
		}
		return nil, fmt.Errorf("failed to get cvr: %w", err)
	}

	return cvr.Unmarshal(data)
}

// PutCVR stores a snapshot; an existing id of the same group is overwritten
func (s *Storage) PutCVR(ctx context.Context, clientGroupID, cvrID string, order int64, record cvr.CVR) error {
	data, err := record.Marshal()
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cvrs (id, client_group_id, cvr_order, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cvr_order = excluded.cvr_order,
			data = excluded.data,
			updated_at = excluded.updated_at
		WHERE sync_cvrs.client_group_id = excluded.client_group_id`,
		cvrID, clientGroupID, order, data, time.Now().UnixMilli(),
	)
	if err != nil {
		return markTransient(fmt.Errorf("failed to put cvr: %w", err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrCVRConflict, cvrID)
	}

	return nil
}

// DeleteCVRsBefore removes snapshots written before cutoff
func (s *Storage) DeleteCVRsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sync_cvrs WHERE updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cvrs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(n), nil
}
