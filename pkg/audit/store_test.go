package audit

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestStore creates an in-memory SQLite DB with the audit table migrated.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestStore_RecordFillsDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := WithCorrelationID(context.Background(), "corr-1")

	event := &Event{
		EventType:  EventCollectionCreated,
		Actor:      "farmer-1",
		ActorRole:  "FARMER",
		ResourceID: "COL20241201001",
		NewValue:   JSONMap{"status": "COLLECTED"},
	}
	require.NoError(t, store.Record(ctx, event))

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, OutcomeSuccess, event.Outcome)
	assert.False(t, event.CreatedAt.IsZero())

	got, err := store.Get(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, EventCollectionCreated, got.EventType)
	assert.Equal(t, "COLLECTED", got.NewValue["status"])
	assert.Nil(t, got.OldValue)
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListPaginationAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &Event{
			ID:         uuid.New().String(),
			EventType:  EventCollectionStatusChanged,
			Actor:      "reg-1",
			ResourceID: "COL1",
			Outcome:    OutcomeSuccess,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Append(ctx, &Event{
		ID:        uuid.New().String(),
		EventType: EventAccessDenied,
		Actor:     "consumer-1",
		Outcome:   OutcomeDenied,
		CreatedAt: base.Add(10 * time.Minute),
	}))

	page1, next, total, err := store.List(ctx, ListFilter{EventType: EventCollectionStatusChanged}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.NotEmpty(t, next)
	assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))

	page2, next2, _, err := store.List(ctx, ListFilter{EventType: EventCollectionStatusChanged}, 2, next)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.True(t, page2[0].CreatedAt.Before(page1[1].CreatedAt))

	page3, next3, _, err := store.List(ctx, ListFilter{EventType: EventCollectionStatusChanged}, 2, next2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, next3)

	denied, _, total, err := store.List(ctx, ListFilter{Outcome: OutcomeDenied}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "consumer-1", denied[0].Actor)

	recent, _, total, err := store.List(ctx, ListFilter{Since: base.Add(3 * time.Minute)}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, recent, 3)

	_, _, _, err = store.List(ctx, ListFilter{}, 10, "yesterday")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestStore_ListByResource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, action := range []string{"create", "update-status", "delete"} {
		require.NoError(t, store.Record(ctx, &Event{
			EventType:  EventCollectionStatusChanged,
			Actor:      "a",
			ResourceID: "COL9",
			Action:     action,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Record(ctx, &Event{EventType: EventAPIRequest, Actor: "a", ResourceID: "COL8"}))

	events, err := store.ListByResource(ctx, "COL9")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "create", events[0].Action)
	assert.Equal(t, "delete", events[2].Action)
}

func TestStore_DeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, &Event{EventType: EventAPIRequest, Actor: "a", CreatedAt: now.AddDate(0, 0, -100)}))
	require.NoError(t, store.Record(ctx, &Event{EventType: EventAPIRequest, Actor: "a", CreatedAt: now.AddDate(0, 0, -10)}))

	deleted, err := store.DeleteOlderThan(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, _, total, err := store.List(ctx, ListFilter{}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestJSONMap_Scan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan(`{"a":1}`))
	assert.Equal(t, float64(1), m["a"])

	require.NoError(t, m.Scan([]byte(`{"b":"x"}`)))
	assert.Equal(t, "x", m["b"])

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)

	assert.Error(t, m.Scan(42))

	v, err := JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
