package docstore

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recordingSink collects published changes.
type recordingSink struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recordingSink) Publish(change Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingSink) all() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func newTestStore(t *testing.T) (Store, *recordingSink) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(&Document{}))

	sink := &recordingSink{}
	return NewGormStore(gormDB, sink), sink
}

func decode(t *testing.T, snap Snapshot) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, snap.DataTo(&m))
	return m
}

func TestGormStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	snap, err := store.Get(context.Background(), "games/42")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Equal(t, "42", snap.ID())
}

func TestGormStore_SetPublishesChanges(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	require.NoError(t, store.Set(ctx, "games/42", map[string]any{"name": "Portal", "isFree": false}))
	require.NoError(t, store.Set(ctx, "games/42", map[string]any{"name": "Portal 2"}))

	snap, err := store.Get(ctx, "games/42")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Portal 2"}, decode(t, snap))

	changes := sink.all()
	require.Len(t, changes, 2)

	assert.False(t, changes[0].Before.Exists)
	assert.True(t, changes[0].After.Exists)
	assert.NotEmpty(t, changes[0].EventID)

	assert.True(t, changes[1].Before.Exists)
	assert.Equal(t, "Portal", decode(t, changes[1].Before)["name"])
	assert.Equal(t, "Portal 2", decode(t, changes[1].After)["name"])
	assert.Equal(t, changes[0].After.CreateTime.Unix(), changes[1].After.CreateTime.Unix(), "create time is kept across writes")
	assert.NotEqual(t, changes[0].EventID, changes[1].EventID)
}

func TestGormStore_MergeKeepsUntouchedFields(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, "games/42", map[string]any{
		"name":      "Portal",
		"isFree":    false,
		"priceData": map[string]any{"final": 5000, "initial": 5000, "discountPercentage": 0},
	}))
	require.NoError(t, store.Merge(ctx, "games/42", map[string]any{
		"priceData": map[string]any{"final": 3500},
	}))

	snap, err := store.Get(ctx, "games/42")
	require.NoError(t, err)

	var got struct {
		Name      string         `json:"name"`
		PriceData map[string]int `json:"priceData"`
	}
	require.NoError(t, snap.DataTo(&got))
	assert.Equal(t, "Portal", got.Name)
	assert.Equal(t, map[string]int{"final": 3500, "initial": 5000, "discountPercentage": 0}, got.PriceData)
}

func TestGormStore_MergeCreatesMissing(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	require.NoError(t, store.Merge(ctx, "users/u1/watchlist/42", json.RawMessage(`{"threshold":4000}`)))

	snap, err := store.Get(ctx, "users/u1/watchlist/42")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	require.Len(t, sink.all(), 1)
}

func TestGormStore_Create(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	require.NoError(t, store.Create(ctx, "games/42", map[string]any{"name": "Portal"}))
	err := store.Create(ctx, "games/42", map[string]any{"name": "Other"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	snap, err := store.Get(ctx, "games/42")
	require.NoError(t, err)
	assert.Equal(t, "Portal", decode(t, snap)["name"])
	assert.Len(t, sink.all(), 1, "a failed create publishes nothing")
}

func TestGormStore_UpdateRequiresExisting(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	err := store.Update(ctx, "games/42", map[string]any{"priceData": map[string]any{"final": 3500}})
	assert.ErrorIs(t, err, ErrNotFound)

	snap, err := store.Get(ctx, "games/42")
	require.NoError(t, err)
	assert.False(t, snap.Exists, "update never creates")
	assert.Empty(t, sink.all())

	require.NoError(t, store.Set(ctx, "games/42", map[string]any{"name": "Portal", "priceData": map[string]any{"final": 5000}}))
	require.NoError(t, store.Update(ctx, "games/42", map[string]any{"priceData": map[string]any{"final": 3500}}))

	snap, err = store.Get(ctx, "games/42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Portal","priceData":{"final":3500}}`, string(snap.Data))
	assert.Len(t, sink.all(), 2)
}

func TestGormStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	require.NoError(t, store.Delete(ctx, "games/42/watchers/u1"), "deleting a missing document is fine")
	assert.Empty(t, sink.all())

	require.NoError(t, store.Set(ctx, "games/42/watchers/u1", map[string]any{"uid": "u1", "threshold": 4000}))
	require.NoError(t, store.Delete(ctx, "games/42/watchers/u1"))

	snap, err := store.Get(ctx, "games/42/watchers/u1")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	changes := sink.all()
	require.Len(t, changes, 2)
	assert.True(t, changes[1].Before.Exists)
	assert.False(t, changes[1].After.Exists)
}

func TestGormStore_ListIsScopedToCollection(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, "games/1", map[string]any{"name": "a"}))
	require.NoError(t, store.Set(ctx, "games/2", map[string]any{"name": "b"}))
	require.NoError(t, store.Set(ctx, "games/1/watchers/u1", map[string]any{"uid": "u1"}))

	games, err := store.List(ctx, "games")
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "1", games[0].ID())
	assert.Equal(t, "2", games[1].ID())

	watchers, err := store.List(ctx, "games/1/watchers")
	require.NoError(t, err)
	require.Len(t, watchers, 1)
	assert.Equal(t, "u1", watchers[0].ID())
}

func TestGormStore_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	assert.Error(t, store.Set(ctx, "games", map[string]any{}), "collection path is not a document")
	assert.Error(t, store.Set(ctx, "games//x/1", map[string]any{}))
	assert.Error(t, store.Set(ctx, "games/1", []int{1, 2}), "payload must be an object")
}

func TestGormStore_GetQueryShape(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE path = $1 LIMIT $2`)).
		WithArgs("games/42", 1).
		WillReturnRows(sqlmock.NewRows([]string{"path", "collection", "data"}).
			AddRow("games/42", "games", []byte(`{"name":"Portal"}`)))

	store := NewGormStore(gormDB, nil)
	snap, err := store.Get(context.Background(), "games/42")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.JSONEq(t, `{"name":"Portal"}`, string(snap.Data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SetRetriesInsertRace(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	selectForUpdate := regexp.QuoteMeta(`SELECT * FROM "documents" WHERE path = $1 LIMIT $2 FOR UPDATE`)
	columns := []string{"path", "collection", "data", "create_time", "update_time"}

	// First attempt: the row is missing, but another writer inserts it first.
	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).
		WithArgs("games/42", 1).
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectExec(`INSERT INTO "documents" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// Second attempt: the row is there now and gets updated.
	mock.ExpectBegin()
	mock.ExpectQuery(selectForUpdate).
		WithArgs("games/42", 1).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("games/42", "games", []byte(`{"name":"Portal"}`), time.Now(), time.Now()))
	mock.ExpectExec(`UPDATE "documents" SET .* WHERE path = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sink := &recordingSink{}
	store := NewGormStore(gormDB, sink)
	require.NoError(t, store.Set(context.Background(), "games/42", map[string]any{"name": "Portal 2"}))
	assert.NoError(t, mock.ExpectationsWereMet())

	changes := sink.all()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Before.Exists, "the retry sees the concurrent insert")
}

func TestMergeJSON_ReplacesNonObjects(t *testing.T) {
	out, err := mergeJSON([]byte(`{"a":{"b":1,"c":2},"d":[1,2]}`), []byte(`{"a":{"b":3},"d":[9]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"b":3,"c":2},"d":[9]}`, string(out))
}

func TestCollectionOf(t *testing.T) {
	assert.Equal(t, "games/42/watchers", CollectionOf("games/42/watchers/u1"))
	assert.Equal(t, "games", CollectionOf("games/42"))
	assert.Equal(t, "users/u1/devices", CollectionOf(Join("users", "u1", "devices", "d1")))
}
