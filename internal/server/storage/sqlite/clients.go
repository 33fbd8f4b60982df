package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

// GetOrCreateClientGroup returns the group, inserting it with cvr_version 0 if absent
func (q *queries) GetOrCreateClientGroup(ctx context.Context, id, userID string) (*models.ClientGroup, error) {
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_client_groups (id, created_by, cvr_version, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, userID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert client group: %w", err)
	}

	group := &models.ClientGroup{}
	var createdAt, updatedAt int64
	err = q.db.QueryRowContext(ctx, `
		SELECT id, created_by, cvr_version, created_at, updated_at
		FROM sync_client_groups
		WHERE id = ?`, id,
	).Scan(&group.ID, &group.CreatedBy, &group.CVRVersion, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get client group: %w", err)
	}

	group.CreatedAt = time.UnixMilli(createdAt).UTC()
	group.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return group, nil
}

// PutClientGroup persists the group's cvr_version
func (q *queries) PutClientGroup(ctx context.Context, group *models.ClientGroup) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE sync_client_groups
		SET cvr_version = ?, updated_at = ?
		WHERE id = ?`,
		group.CVRVersion, time.Now().UnixMilli(), group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client group: %w", err)
	}

	return expectOneRow(result)
}

// GetOrCreateClient returns the client, inserting it with last_mutation_id 0 if absent
func (q *queries) GetOrCreateClient(ctx context.Context, id, clientGroupID string) (*models.Client, error) {
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_clients (id, client_group_id, last_mutation_id, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, clientGroupID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert client: %w", err)
	}

	client := &models.Client{}
	var createdAt, updatedAt int64
	err = q.db.QueryRowContext(ctx, `
		SELECT id, client_group_id, last_mutation_id, created_at, updated_at
		FROM sync_clients
		WHERE id = ?`, id,
	).Scan(&client.ID, &client.ClientGroupID, &client.LastMutationID, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	client.CreatedAt = time.UnixMilli(createdAt).UTC()
	client.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return client, nil
}

// PutClient persists the client's last_mutation_id
func (q *queries) PutClient(ctx context.Context, client *models.Client) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE sync_clients
		SET last_mutation_id = ?, updated_at = ?
		WHERE id = ?`,
		client.LastMutationID, time.Now().UnixMilli(), client.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}

	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return storage.ErrRowNotFound
	}
	return nil
}
