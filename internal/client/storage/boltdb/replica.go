package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/ids"
	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/pkg/api"
)

var (
	metaIdentity       = []byte("identity")
	metaCookie         = []byte("cookie")
	metaLastMutationID = []byte("last_mutation_id")
)

// Identity возвращает идентификаторы реплики, создавая их при первом вызове
func (s *Storage) Identity(ctx context.Context) (storage.Identity, error) {
	var identity storage.Identity

	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		identity, err = loadIdentity(tx)
		return err
	})

	return identity, err
}

func loadIdentity(tx *bbolt.Tx) (storage.Identity, error) {
	meta := tx.Bucket(bucketMeta)

	var identity storage.Identity
	if data := meta.Get(metaIdentity); data != nil {
		if err := json.Unmarshal(data, &identity); err != nil {
			return identity, fmt.Errorf("failed to unmarshal identity: %w", err)
		}
		return identity, nil
	}

	if !tx.Writable() {
		return identity, fmt.Errorf("replica identity is not initialized")
	}

	identity = storage.Identity{
		ClientGroupID: ids.NewClientID(),
		ClientID:      ids.NewClientID(),
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return identity, fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := meta.Put(metaIdentity, data); err != nil {
		return identity, fmt.Errorf("failed to save identity: %w", err)
	}
	return identity, nil
}

// Cookie возвращает cookie последнего pull
func (s *Storage) Cookie(ctx context.Context) (*api.Cookie, error) {
	var cookie *api.Cookie

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(metaCookie)
		if data == nil {
			return nil
		}
		cookie = &api.Cookie{}
		if err := json.Unmarshal(data, cookie); err != nil {
			return fmt.Errorf("failed to unmarshal cookie: %w", err)
		}
		return nil
	})

	return cookie, err
}

// ResetCookie забывает cookie, реплика остается на месте до следующего clear
func (s *Storage) ResetCookie(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Delete(metaCookie)
	})
}

// ApplyPull применяет ответ pull в одной транзакции
func (s *Storage) ApplyPull(ctx context.Context, resp *api.PullResponse) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := applyPatch(tx, resp.Patch); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		if resp.Cookie == nil {
			if err := meta.Delete(metaCookie); err != nil {
				return err
			}
		} else {
			data, err := json.Marshal(resp.Cookie)
			if err != nil {
				return fmt.Errorf("failed to marshal cookie: %w", err)
			}
			if err := meta.Put(metaCookie, data); err != nil {
				return fmt.Errorf("failed to save cookie: %w", err)
			}
		}

		identity, err := loadIdentity(tx)
		if err != nil {
			return err
		}
		confirmed, ok := resp.LastMutationIDChanges[identity.ClientID]
		if !ok {
			return nil
		}
		return prunePending(tx, confirmed)
	})
}

func applyPatch(tx *bbolt.Tx, patch []api.PatchOp) error {
	for i, op := range patch {
		switch op.Op {
		case api.PatchOpClear:
			if err := tx.DeleteBucket(bucketRows); err != nil {
				return fmt.Errorf("failed to clear rows: %w", err)
			}
			if _, err := tx.CreateBucket(bucketRows); err != nil {
				return fmt.Errorf("failed to recreate rows bucket: %w", err)
			}
		case api.PatchOpDel:
			if op.Key == "" {
				return fmt.Errorf("%w: patch[%d] del without key", storage.ErrInvalidPatch, i)
			}
			if err := tx.Bucket(bucketRows).Delete([]byte(op.Key)); err != nil {
				return fmt.Errorf("failed to delete %s: %w", op.Key, err)
			}
		case api.PatchOpPut:
			if op.Key == "" || len(op.Value) == 0 {
				return fmt.Errorf("%w: patch[%d] put without key or value", storage.ErrInvalidPatch, i)
			}
			if err := tx.Bucket(bucketRows).Put([]byte(op.Key), op.Value); err != nil {
				return fmt.Errorf("failed to put %s: %w", op.Key, err)
			}
		default:
			return fmt.Errorf("%w: patch[%d] unknown op %q", storage.ErrInvalidPatch, i, op.Op)
		}
	}
	return nil
}

// prunePending удаляет мутации с ID <= confirmed
func prunePending(tx *bbolt.Tx, confirmed int64) error {
	pending := tx.Bucket(bucketPending)

	var done [][]byte
	c := pending.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if int64(binary.BigEndian.Uint64(k)) > confirmed {
			break
		}
		done = append(done, k)
	}

	for _, k := range done {
		if err := pending.Delete(k); err != nil {
			return fmt.Errorf("failed to delete confirmed mutation: %w", err)
		}
	}
	return nil
}

// Enqueue добавляет мутацию в очередь со следующим ID клиента
func (s *Storage) Enqueue(ctx context.Context, name string, args json.RawMessage) (api.Mutation, error) {
	var m api.Mutation

	err := s.db.Update(func(tx *bbolt.Tx) error {
		identity, err := loadIdentity(tx)
		if err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		var last uint64
		if data := meta.Get(metaLastMutationID); data != nil {
			last = binary.BigEndian.Uint64(data)
		}
		next := last + 1

		m = api.Mutation{
			ClientID: identity.ClientID,
			Name:     name,
			Args:     args,
			ID:       int64(next),
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal mutation: %w", err)
		}

		if err := tx.Bucket(bucketPending).Put(u64(next), data); err != nil {
			return fmt.Errorf("failed to enqueue mutation: %w", err)
		}
		return meta.Put(metaLastMutationID, u64(next))
	})

	return m, err
}

// RestartClient меняет ClientID и перенумеровывает очередь в одной транзакции
func (s *Storage) RestartClient(ctx context.Context) (storage.Identity, error) {
	var identity storage.Identity

	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		identity, err = loadIdentity(tx)
		if err != nil {
			return err
		}
		identity.ClientID = ids.NewClientID()

		meta := tx.Bucket(bucketMeta)
		data, err := json.Marshal(identity)
		if err != nil {
			return fmt.Errorf("failed to marshal identity: %w", err)
		}
		if err := meta.Put(metaIdentity, data); err != nil {
			return fmt.Errorf("failed to save identity: %w", err)
		}

		var queue []api.Mutation
		err = tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var m api.Mutation
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to unmarshal mutation: %w", err)
			}
			queue = append(queue, m)
			return nil
		})
		if err != nil {
			return err
		}

		if err := tx.DeleteBucket(bucketPending); err != nil {
			return fmt.Errorf("failed to clear pending: %w", err)
		}
		pending, err := tx.CreateBucket(bucketPending)
		if err != nil {
			return fmt.Errorf("failed to recreate pending bucket: %w", err)
		}

		for i, m := range queue {
			m.ID = int64(i + 1)
			m.ClientID = identity.ClientID
			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("failed to marshal mutation: %w", err)
			}
			if err := pending.Put(u64(uint64(m.ID)), data); err != nil {
				return fmt.Errorf("failed to enqueue mutation: %w", err)
			}
		}

		return meta.Put(metaLastMutationID, u64(uint64(len(queue))))
	})

	return identity, err
}

// Pending возвращает очередь мутаций в порядке ID
func (s *Storage) Pending(ctx context.Context) ([]api.Mutation, error) {
	var out []api.Mutation

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var m api.Mutation
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to unmarshal mutation: %w", err)
			}
			out = append(out, m)
			return nil
		})
	})

	return out, err
}

// GetRow возвращает строку по ключу
func (s *Storage) GetRow(ctx context.Context, key string) (json.RawMessage, error) {
	var value json.RawMessage

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRows).Get([]byte(key))
		if data == nil {
			return storage.ErrRowNotFound
		}
		// данные bbolt валидны только внутри транзакции
		value = bytes.Clone(data)
		return nil
	})

	return value, err
}

// ListRows возвращает строки коллекции
func (s *Storage) ListRows(ctx context.Context, collection models.Collection) ([]storage.Row, error) {
	prefix := []byte(collection.Key(""))
	var rows []storage.Row

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRows).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rows = append(rows, storage.Row{
				Key:   string(k),
				Value: bytes.Clone(v),
			})
		}
		return nil
	})

	return rows, err
}

// Reset удаляет реплику, очередь и идентификаторы
func (s *Storage) Reset(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range bucketsReplica {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to delete %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
