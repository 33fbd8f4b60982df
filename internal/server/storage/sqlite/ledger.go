package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

// maxInParams ограничение на число параметров в одном IN (...)
const maxInParams = 500

// collectionTable описывает таблицу коллекции
type collectionTable struct {
	scan    func(scanner) (models.Record, error)
	name    string
	columns string
}

var collectionTables = map[models.Collection]collectionTable{
	models.CollectionBoard: {
		name:    "board",
		columns: boardColumns,
		scan:    func(r scanner) (models.Record, error) { return scanBoard(r) },
	},
	models.CollectionBoardColumn: {
		name:    "board_column",
		columns: boardColumnColumns,
		scan:    func(r scanner) (models.Record, error) { return scanBoardColumn(r) },
	},
	models.CollectionBoardItem: {
		name:    "board_item",
		columns: boardItemColumns,
		scan:    func(r scanner) (models.Record, error) { return scanBoardItem(r) },
	},
	models.CollectionList: {
		name:    "list",
		columns: listColumns,
		scan:    func(r scanner) (models.Record, error) { return scanList(r) },
	},
	models.CollectionListItem: {
		name:    "list_item",
		columns: listItemColumns,
		scan:    func(r scanner) (models.Record, error) { return scanListItem(r) },
	},
}

func tableFor(collection models.Collection) (collectionTable, error) {
	t, ok := collectionTables[collection]
	if !ok {
		return collectionTable{}, fmt.Errorf("%w: %s", storage.ErrUnknownCollection, collection)
	}
	return t, nil
}

// ListVersions returns (id, row_version) of every row created by userID
func (q *queries) ListVersions(ctx context.Context, collection models.Collection, userID string) ([]models.RowVersion, error) {
	t, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, row_version FROM ` + t.name + ` WHERE created_by = ?`
	return q.listVersions(ctx, query, userID)
}

// ListClientVersions returns (id, last_mutation_id) of every client in the group
func (q *queries) ListClientVersions(ctx context.Context, clientGroupID string) ([]models.RowVersion, error) {
	query := `SELECT id, last_mutation_id FROM sync_clients WHERE client_group_id = ?`
	return q.listVersions(ctx, query, clientGroupID)
}

func (q *queries) listVersions(ctx context.Context, query string, arg string) ([]models.RowVersion, error) {
	rows, err := q.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []models.RowVersion
	for rows.Next() {
		var v models.RowVersion
		if err := rows.Scan(&v.ID, &v.Version); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

// GetRows fetches full rows by id, in chunks of maxInParams
func (q *queries) GetRows(ctx context.Context, collection models.Collection, ids []string) ([]models.Record, error) {
	t, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	// Пустой список: без обращения к БД
	if len(ids) == 0 {
		return nil, nil
	}

	records := make([]models.Record, 0, len(ids))
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		chunk, err := q.getRowsChunk(ctx, t, ids[start:end])
		if err != nil {
			return nil, err
		}
		records = append(records, chunk...)
	}

	return records, nil
}

func (q *queries) getRowsChunk(ctx context.Context, t collectionTable, ids []string) ([]models.Record, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `SELECT ` + t.columns + ` FROM ` + t.name + ` WHERE id IN (` + placeholders + `) ORDER BY id`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rows: %w", t.name, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		record, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", t.name, err)
	}

	return records, nil
}
