package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/models"
)

// setupTestStorage создает in-memory БД с примененными миграциями
func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		s.Close()
	}

	return s, cleanup
}

func createTestUser(t *testing.T, s *Storage, username string) *models.User {
	t.Helper()

	now := time.Now()
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateUser(context.Background(), user))

	return user
}

func newTestBoard(id, userID string) *models.Board {
	now := time.Now().UTC()
	return &models.Board{
		Name: "Board " + id,
		Entity: models.Entity{
			ID:        id,
			PublicID:  "PUB" + id,
			CreatedBy: userID,
			Created:   now,
			Updated:   now,
		},
	}
}
