// Package boltcvr хранит снимки CVR в отдельном файле BoltDB.
// Используется, когда CVR нужно вынести из основной БД.
package boltcvr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/boardsync/internal/cvr"
	"github.com/iudanet/boardsync/internal/server/storage"
)

var bucketCVRs = []byte("cvrs")

var _ storage.CVRStorage = (*Storage)(nil)

// record значение в bucket
type record struct {
	UpdatedAt     time.Time       `json:"updated_at"`
	ClientGroupID string          `json:"client_group_id"`
	Data          json.RawMessage `json:"data"`
	Order         int64           `json:"order"`
}

// Storage represents BoltDB CVR storage
type Storage struct {
	db *bbolt.DB
}

// New opens (or creates) the BoltDB file at dbPath
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCVRs); err != nil {
			return fmt.Errorf("failed to create cvrs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetCVR loads a snapshot issued to clientGroupID
func (s *Storage) GetCVR(ctx context.Context, clientGroupID, cvrID string, order int64) (cvr.CVR, error) {
	var rec record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCVRs).Get([]byte(cvrID))
		if data == nil {
			return storage.ErrCVRNotFound
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal cvr record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.ClientGroupID != clientGroupID || rec.Order != order {
		return nil, storage.ErrCVRNotFound
	}

	return cvr.Unmarshal(rec.Data)
}

// PutCVR stores a snapshot under cvrID unless another group holds it
func (s *Storage) PutCVR(ctx context.Context, clientGroupID, cvrID string, order int64, c cvr.CVR) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	value, err := json.Marshal(record{
		ClientGroupID: clientGroupID,
		Data:          data,
		Order:         order,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cvr record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCVRs)
		if existing := bucket.Get([]byte(cvrID)); existing != nil {
			var prev record
			if err := json.Unmarshal(existing, &prev); err != nil {
				return fmt.Errorf("failed to unmarshal cvr record: %w", err)
			}
			if prev.ClientGroupID != clientGroupID {
				return fmt.Errorf("%w: %s", storage.ErrCVRConflict, cvrID)
			}
		}

		if err := bucket.Put([]byte(cvrID), value); err != nil {
			return fmt.Errorf("failed to put cvr: %w", err)
		}
		return nil
	})
}

// DeleteCVRsBefore removes snapshots written before cutoff
func (s *Storage) DeleteCVRsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCVRs)

		// Удалять во время обхода курсором нельзя, собираем ключи
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal cvr record: %w", err)
			}
			if rec.UpdatedAt.Before(cutoff) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete cvr: %w", err)
			}
		}
		deleted = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}
