package rowsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/mutators"
	"github.com/iudanet/boardsync/internal/server/rowsync"
	"github.com/iudanet/boardsync/internal/server/storage"
	"github.com/iudanet/boardsync/internal/server/storage/sqlite"
	"github.com/iudanet/boardsync/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockNotifier запоминает пользователей, которым отправлен poke
type mockNotifier struct {
	users []string
	mu    sync.Mutex
}

func (m *mockNotifier) Notify(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
}

func (m *mockNotifier) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.users...)
}

// mockMetrics считает исходы
type mockMetrics struct {
	pulls     map[string]int
	mutations map[string]int
	mu        sync.Mutex
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{pulls: map[string]int{}, mutations: map[string]int{}}
}

func (m *mockMetrics) ObservePull(outcome string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls[outcome]++
}

func (m *mockMetrics) ObserveMutation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations[outcome]++
}

type testEnv struct {
	store    *sqlite.Storage
	svc      *rowsync.Service
	notifier *mockNotifier
	metrics  *mockMetrics
	userID   string
}

func setupTestEnv(t *testing.T, opts ...rowsync.Option) *testEnv {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:    store,
		notifier: &mockNotifier{},
		metrics:  newMockMetrics(),
	}
	env.userID = env.createUser(t, "alice")

	opts = append([]rowsync.Option{
		rowsync.WithNotifier(env.notifier),
		rowsync.WithMetrics(env.metrics),
		rowsync.WithRetry(3, time.Millisecond),
	}, opts...)
	env.svc = rowsync.NewService(setupTestLogger(), store, store, mutators.NewDispatcher(setupTestLogger()), opts...)

	return env
}

func (e *testEnv) createUser(t *testing.T, username string) string {
	t.Helper()

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, e.store.CreateUser(context.Background(), user))
	return user.ID
}

func (e *testEnv) pull(t *testing.T, userID string, cookie *api.Cookie) *api.PullResponse {
	t.Helper()

	resp, err := e.svc.Pull(context.Background(), userID, &api.PullRequest{ClientGroupID: "g1", Cookie: cookie})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) lastMutationID(t *testing.T, clientID string) int64 {
	t.Helper()

	client, err := e.store.GetOrCreateClient(context.Background(), clientID, "g1")
	require.NoError(t, err)
	return client.LastMutationID
}

func listCreate(id int64, listID string) api.Mutation {
	return api.Mutation{
		ID:       id,
		ClientID: "c1",
		Name:     "list",
		Args:     json.RawMessage(fmt.Sprintf(`[{"_op":"create","id":%q,"name":"List %s","order":0}]`, listID, listID)),
	}
}

func push(mutations ...api.Mutation) *api.PushRequest {
	return &api.PushRequest{ClientGroupID: "g1", Mutations: mutations}
}

func TestPull_FirstSyncClearsAndPuts(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	// Доска b1 с версией 5
	now := time.Now().UTC()
	require.NoError(t, env.store.InsertBoard(ctx, &models.Board{
		Name:   "Roadmap",
		Entity: models.Entity{ID: "b1", PublicID: "6789BCDFGHJK", CreatedBy: env.userID, Created: now, Updated: now},
	}))
	_, err := env.store.DB().ExecContext(ctx, `UPDATE board SET row_version = 5 WHERE id = 'b1'`)
	require.NoError(t, err)

	resp := env.pull(t, env.userID, nil)

	require.Len(t, resp.Patch, 2)
	assert.Equal(t, api.PatchOpClear, resp.Patch[0].Op)
	assert.Equal(t, api.PatchOpPut, resp.Patch[1].Op)
	assert.Equal(t, "board/b1", resp.Patch[1].Key)

	var board models.Board
	require.NoError(t, json.Unmarshal(resp.Patch[1].Value, &board))
	assert.Equal(t, "Roadmap", board.Name)
	assert.EqualValues(t, 5, board.Version)

	require.NotNil(t, resp.Cookie)
	assert.EqualValues(t, 1, resp.Cookie.Order)
	assert.NotEmpty(t, resp.Cookie.CVRID)
	assert.Empty(t, resp.LastMutationIDChanges)
}

func TestPull_RepeatIsNoop(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	first := env.pull(t, env.userID, nil)
	second := env.pull(t, env.userID, first.Cookie)

	assert.Equal(t, first.Cookie, second.Cookie)
	assert.Empty(t, second.Patch)
	assert.NotNil(t, second.Patch)
	assert.Empty(t, second.LastMutationIDChanges)
	assert.NotNil(t, second.LastMutationIDChanges)

	// Пустой pull не увеличивает cvr_version
	group, err := env.store.GetOrCreateClientGroup(ctx, "g1", env.userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, group.CVRVersion)

	assert.Equal(t, 1, env.metrics.pulls[rowsync.PullOutcomeNoop])
	assert.Equal(t, 1, env.metrics.pulls[rowsync.PullOutcomePatch])
}

func TestPull_OrderStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	first := env.pull(t, env.userID, nil)
	assert.EqualValues(t, 1, first.Cookie.Order)

	_, err := env.svc.Push(ctx, env.userID, push(listCreate(1, "l1")))
	require.NoError(t, err)

	second := env.pull(t, env.userID, first.Cookie)
	assert.EqualValues(t, 2, second.Cookie.Order)
	assert.Equal(t, first.Cookie.CVRID, second.Cookie.CVRID, "cvr id is reused")
	assert.Equal(t, map[string]int64{"c1": 1}, second.LastMutationIDChanges)
	require.Len(t, second.Patch, 1)
	assert.Equal(t, "list/l1", second.Patch[0].Key)

	// Устаревший cookie: снимок перезаписан, полный ресинк, order все равно растет
	stale := env.pull(t, env.userID, first.Cookie)
	assert.EqualValues(t, 3, stale.Cookie.Order)
	require.NotEmpty(t, stale.Patch)
	assert.Equal(t, api.PatchOpClear, stale.Patch[0].Op)
	assert.Equal(t, map[string]int64{"c1": 1}, stale.LastMutationIDChanges)
}

func TestPull_UnknownCVRForcesFullResync(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.pull(t, env.userID, &api.Cookie{Order: 7, CVRID: "expired"})

	require.Len(t, resp.Patch, 1)
	assert.Equal(t, api.PatchOpClear, resp.Patch[0].Op)
	assert.EqualValues(t, 8, resp.Cookie.Order, "order continues from the cookie")
	assert.NotEqual(t, "expired", resp.Cookie.CVRID, "unknown cvr id is not reused")
}

func TestPull_ForeignCookieDoesNotTouchOwnerCVR(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	bob := env.createUser(t, "bob")

	alice := env.pull(t, env.userID, nil)

	// bob предъявляет cookie alice в своей группе
	bobResp, err := env.svc.Pull(ctx, bob, &api.PullRequest{ClientGroupID: "g2", Cookie: alice.Cookie})
	require.NoError(t, err)
	require.NotEmpty(t, bobResp.Patch)
	assert.Equal(t, api.PatchOpClear, bobResp.Patch[0].Op)
	assert.NotEqual(t, alice.Cookie.CVRID, bobResp.Cookie.CVRID)

	// снимок alice не поврежден: повторный pull остается пустым
	again := env.pull(t, env.userID, alice.Cookie)
	assert.Equal(t, alice.Cookie, again.Cookie)
	assert.Empty(t, again.Patch)
}

func TestPull_TombstoneIsPut(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	_, err := env.svc.Push(ctx, env.userID, push(listCreate(1, "l1")))
	require.NoError(t, err)
	first := env.pull(t, env.userID, nil)

	_, err = env.svc.Push(ctx, env.userID, push(api.Mutation{
		ID: 2, ClientID: "c1", Name: "list", Args: json.RawMessage(`[{"_op":"delete","id":"l1"}]`),
	}))
	require.NoError(t, err)

	resp := env.pull(t, env.userID, first.Cookie)
	require.Len(t, resp.Patch, 1)
	assert.Equal(t, api.PatchOpPut, resp.Patch[0].Op)

	var list models.List
	require.NoError(t, json.Unmarshal(resp.Patch[0].Value, &list))
	assert.True(t, list.Deleted)
}

func TestPull_AuthorizationAndValidation(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	bob := env.createUser(t, "bob")

	env.pull(t, env.userID, nil)

	_, err := env.svc.Pull(ctx, bob, &api.PullRequest{ClientGroupID: "g1"})
	assert.True(t, rowsync.IsKind(err, rowsync.KindAuthorization))

	_, err = env.svc.Pull(ctx, env.userID, &api.PullRequest{})
	assert.True(t, rowsync.IsKind(err, rowsync.KindValidation))

	_, err = env.svc.Pull(ctx, env.userID, &api.PullRequest{ClientGroupID: "g1", Cookie: &api.Cookie{Order: 1}})
	assert.True(t, rowsync.IsKind(err, rowsync.KindValidation))
}

func TestPull_VisibilityIsPerUser(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	bob := env.createUser(t, "bob")

	_, err := env.svc.Push(ctx, bob, &api.PushRequest{ClientGroupID: "bob-group", Mutations: []api.Mutation{
		{ID: 1, ClientID: "bob-client", Name: "list", Args: json.RawMessage(`[{"_op":"create","id":"bl","name":"Bob","order":0}]`)},
	}})
	require.NoError(t, err)

	resp := env.pull(t, env.userID, nil)
	require.Len(t, resp.Patch, 1, "only clear, bob's rows are invisible")
}

func TestPush_AppliesOnceAndSkipsReplay(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	result, err := env.svc.Push(ctx, env.userID, push(listCreate(1, "l1")))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, models.Affected{models.CollectionList: {"l1"}}, result.Affected)
	assert.EqualValues(t, 1, env.lastMutationID(t, "c1"))

	result, err = env.svc.Push(ctx, env.userID, push(listCreate(1, "l1")))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.EqualValues(t, 1, env.lastMutationID(t, "c1"))

	versions, err := env.store.ListVersions(ctx, models.CollectionList, env.userID)
	require.NoError(t, err)
	assert.Equal(t, []models.RowVersion{{ID: "l1", Version: 1}}, versions)

	// Poke только после push, который что-то изменил
	assert.Equal(t, []string{env.userID}, env.notifier.calls())
}

func TestPush_GapIsSequenceError(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	_, err := env.svc.Push(ctx, env.userID, push(listCreate(1, "l1")))
	require.NoError(t, err)

	// last_mutation_id == 1, приходит 3 раньше 2
	result, err := env.svc.Push(ctx, env.userID, push(listCreate(3, "l3")))
	assert.True(t, rowsync.IsKind(err, rowsync.KindSequence))
	assert.Equal(t, 0, result.Applied)
	assert.EqualValues(t, 1, env.lastMutationID(t, "c1"))

	// Мутации после разрыва не применяются
	result, err = env.svc.Push(ctx, env.userID, push(listCreate(2, "l2"), listCreate(4, "l4"), listCreate(5, "l5")))
	assert.True(t, rowsync.IsKind(err, rowsync.KindSequence))
	assert.Equal(t, 1, result.Applied)
	assert.EqualValues(t, 2, env.lastMutationID(t, "c1"))

	_, err = env.store.GetList(ctx, "l5")
	assert.ErrorIs(t, err, storage.ErrRowNotFound)
}

func TestPush_BusinessFailureAdvancesInErrorMode(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	bad := api.Mutation{ID: 1, ClientID: "c1", Name: "list", Args: json.RawMessage(`[{"_op":"create","id":"bad","order":0}]`)}

	result, err := env.svc.Push(ctx, env.userID, push(bad, listCreate(2, "l2")))
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.EqualValues(t, 1, result.Failures[0].ID)
	assert.True(t, rowsync.IsKind(result.Failures[0].Err, rowsync.KindValidation))
	assert.Equal(t, 1, result.Applied)
	assert.EqualValues(t, 2, env.lastMutationID(t, "c1"))

	_, err = env.store.GetList(ctx, "bad")
	assert.ErrorIs(t, err, storage.ErrRowNotFound, "failed mutation has no effect")
	_, err = env.store.GetList(ctx, "l2")
	require.NoError(t, err)

	assert.Equal(t, 1, env.metrics.mutations[rowsync.MutationFailed])
	assert.Equal(t, 1, env.metrics.mutations[rowsync.MutationApplied])
}

func TestPush_PartialBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	// Вторая операция падает: первая тоже не должна сохраниться
	m := api.Mutation{ID: 1, ClientID: "c1", Name: "list", Args: json.RawMessage(`[
		{"_op":"create","id":"ok","name":"fine","order":0},
		{"_op":"update","id":"missing","name":"x"}
	]`)}

	result, err := env.svc.Push(ctx, env.userID, push(m))
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)

	_, err = env.store.GetList(ctx, "ok")
	assert.ErrorIs(t, err, storage.ErrRowNotFound)
	assert.EqualValues(t, 1, env.lastMutationID(t, "c1"))
}

func TestPush_Authorization(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	bob := env.createUser(t, "bob")

	_, err := env.svc.Push(ctx, env.userID, push(listCreate(1, "l1")))
	require.NoError(t, err)

	// Чужая группа
	_, err = env.svc.Push(ctx, bob, push(listCreate(1, "x")))
	assert.True(t, rowsync.IsKind(err, rowsync.KindAuthorization))

	// Клиент c1 уже принадлежит группе g1
	_, err = env.svc.Push(ctx, env.userID, &api.PushRequest{ClientGroupID: "g2", Mutations: []api.Mutation{listCreate(2, "y")}})
	assert.True(t, rowsync.IsKind(err, rowsync.KindAuthorization))
	assert.EqualValues(t, 1, env.lastMutationID(t, "c1"))
}

func TestPush_UnknownMutationAdvancesSequence(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	result, err := env.svc.Push(ctx, env.userID, push(api.Mutation{
		ID: 1, ClientID: "c1", Name: "renamedInNewerClient", Args: json.RawMessage(`{}`),
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.True(t, result.Affected.IsEmpty())
	assert.EqualValues(t, 1, env.lastMutationID(t, "c1"))
	assert.Empty(t, env.notifier.calls())
}

func TestPush_Validation(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.svc.Push(context.Background(), env.userID, &api.PushRequest{
		ClientGroupID: "g1",
		Mutations:     []api.Mutation{{ID: 0, ClientID: "c1", Name: "list"}},
	})
	assert.True(t, rowsync.IsKind(err, rowsync.KindValidation))
}

// flakyStore возвращает временную ошибку первые failures раз
type flakyStore struct {
	storage.TxRunner
	failures int
	calls    int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("%w: database is locked", storage.ErrTransient)
	}
	return f.TxRunner.InTx(ctx, fn)
}

func TestPush_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	flaky := &flakyStore{TxRunner: env.store, failures: 2}
	svc := rowsync.NewService(setupTestLogger(), flaky, env.store, mutators.NewDispatcher(setupTestLogger()),
		rowsync.WithRetry(3, time.Millisecond))

	result, err := svc.Push(ctx, env.userID, push(listCreate(1, "l1")))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 3, flaky.calls)

	down := &flakyStore{TxRunner: env.store, failures: 100}
	svc = rowsync.NewService(setupTestLogger(), down, env.store, mutators.NewDispatcher(setupTestLogger()),
		rowsync.WithRetry(2, time.Millisecond))

	_, err = svc.Push(ctx, env.userID, push(listCreate(2, "l2")))
	require.Error(t, err)
	assert.True(t, storage.IsTransient(err))
	assert.False(t, errors.Is(err, storage.ErrRowNotFound))
	assert.Equal(t, 3, down.calls, "one attempt plus two retries")
	assert.EqualValues(t, 1, env.lastMutationID(t, "c1"))
}
