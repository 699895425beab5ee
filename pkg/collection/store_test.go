package collection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/herbtrace/herbtrace/pkg/filter"
)

// newTestDB creates an in-memory SQLite DB with the collections table migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every pooled connection to :memory: would be a separate database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, NewStore(db).AutoMigrate())
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestDB(t))
}

func testRecord(id, herb, collector string, qty float64) *Record {
	return &Record{
		ID:                 id,
		HerbName:           herb,
		QuantityKg:         qty,
		Latitude:           23.2,
		Longitude:          77.4,
		CollectionLocation: "Bhopal district",
		DetectedRegion:     "MADHYA PRADESH",
		CollectionDate:     time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC),
		CollectorID:        collector,
		Status:             StatusCollected,
		Version:            1,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("COL20241201001", "Ashwagandha", "farmer-1", 12.5)
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "COL20241201001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ashwagandha", got.HerbName)
	assert.Equal(t, "farmer-1", got.CollectorID)
	assert.Equal(t, StatusCollected, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.InDelta(t, 12.5, got.QuantityKg, 1e-9)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "COL00000000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Create_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testRecord("COL20241201001", "Tulsi", "farmer-1", 1)))
	err := store.Create(ctx, testRecord("COL20241201001", "Neem", "farmer-2", 2))
	assert.ErrorIs(t, err, ErrDuplicateID)

	got, err := store.Get(ctx, "COL20241201001")
	require.NoError(t, err)
	assert.Equal(t, "Tulsi", got.HerbName, "original record must be untouched")
}

func TestStore_SetStatus_Versioned(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, testRecord("COL20241201001", "Tulsi", "farmer-1", 1)))

	first, err := store.Get(ctx, "COL20241201001")
	require.NoError(t, err)
	stale, err := store.Get(ctx, "COL20241201001")
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, first, StatusInStorage))
	assert.Equal(t, StatusInStorage, first.Status)
	assert.Equal(t, int64(2), first.Version)

	err = store.SetStatus(ctx, stale, StatusApproved)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "COL20241201001", conflict.ID)
	assert.Equal(t, int64(1), conflict.Version)

	got, err := store.Get(ctx, "COL20241201001")
	require.NoError(t, err)
	assert.Equal(t, StatusInStorage, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_List_Pagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Create(ctx, testRecord(fmt.Sprintf("COL20241201%03d", i), "Tulsi", "farmer-1", float64(i))))
	}

	page1, next, err := store.List(ctx, Query{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "COL20241201005", page1[0].ID)
	assert.Equal(t, "COL20241201004", page1[1].ID)
	assert.Equal(t, "COL20241201004", next)

	page2, next, err := store.List(ctx, Query{PageSize: 2, PageToken: next})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "COL20241201003", page2[0].ID)

	page3, next, err := store.List(ctx, Query{PageSize: 2, PageToken: next})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "COL20241201001", page3[0].ID)
	assert.Empty(t, next)
}

func TestStore_List_Queries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testRecord("COL20241201001", "Ashwagandha", "farmer-1", 10)
	a.ScientificName = "Withania somnifera"
	b := testRecord("COL20241201002", "Tulsi", "farmer-2", 3)
	b.CollectionLocation = "Varanasi ghats"
	b.DetectedRegion = "UTTAR PRADESH"
	b.Status = StatusInStorage
	c := testRecord("COL20241201003", "tulsi", "farmer-1", 40)
	d := testRecord("COL20241201004", "Neem", "farmer-3", 1)
	d.CollectionLocation = "Plot 10% shade_house"
	for _, r := range []*Record{a, b, c, d} {
		require.NoError(t, store.Create(ctx, r))
	}

	ids := func(records []Record) []string {
		out := make([]string, len(records))
		for i, r := range records {
			out[i] = r.ID
		}
		return out
	}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"by collector", Query{CollectorID: "farmer-1"}, []string{"COL20241201003", "COL20241201001"}},
		{"by status", Query{Status: StatusInStorage}, []string{"COL20241201002"}},
		{"by herb ignores case", Query{HerbName: "TULSI"}, []string{"COL20241201003", "COL20241201002"}},
		{"by location", Query{Location: "varanasi"}, []string{"COL20241201002"}},
		{"search scientific name", Query{Search: "withania"}, []string{"COL20241201001"}},
		{"search location", Query{Search: "GHATS"}, []string{"COL20241201002"}},
		{"no match", Query{Search: "saffron"}, []string{}},
		{"percent is literal", Query{Search: "%"}, []string{"COL20241201004"}},
		{"underscore is literal", Query{Location: "_"}, []string{"COL20241201004"}},
		{"wildcards inside a term", Query{Search: "10% shade_h"}, []string{"COL20241201004"}},
		{"escape character is literal", Query{Search: "!"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := store.List(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	t.Run("filter expression", func(t *testing.T) {
		f, err := filter.Compile(`quantityKg >= 5 AND detectedRegion = 'MADHYA PRADESH'`, FilterSchema)
		require.NoError(t, err)
		got, _, err := store.List(ctx, Query{Filter: f})
		require.NoError(t, err)
		assert.Equal(t, []string{"COL20241201003", "COL20241201001"}, ids(got))
	})
}

func TestStore_DistinctAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testRecord("COL20241201001", "Tulsi", "farmer-1", 1)
	b := testRecord("COL20241201002", "Neem", "farmer-1", 1)
	b.CollectionLocation = "Jaipur outskirts"
	c := testRecord("COL20241201003", "Tulsi", "farmer-2", 1)
	c.CollectionLocation = ""
	for _, r := range []*Record{a, b, c} {
		require.NoError(t, store.Create(ctx, r))
	}

	herbs, err := store.DistinctHerbNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Neem", "Tulsi"}, herbs)

	locations, err := store.DistinctLocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bhopal district", "Jaipur outskirts"}, locations)

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestStore_Statistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := testRecord("COL20240101001", "Neem", "farmer-1", 100)
	old.CollectionDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := testRecord("COL20241201001", "Tulsi", "farmer-1", 2)
	b := testRecord("COL20241201002", "Tulsi", "farmer-2", 3)
	c := testRecord("COL20241201003", "Neem", "farmer-2", 5)
	c.DetectedRegion = "RAJASTHAN"
	for _, r := range []*Record{old, a, b, c} {
		require.NoError(t, store.Create(ctx, r))
	}

	count, total, err := store.Totals(ctx, "farmer-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.InDelta(t, 102, total, 1e-9)

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	count, total, err = store.Totals(ctx, "", &since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.InDelta(t, 10, total, 1e-9)

	byHerb, err := store.ByHerb(ctx, &since)
	require.NoError(t, err)
	require.Len(t, byHerb, 2)
	assert.Equal(t, HerbStat{HerbName: "Tulsi", Count: 2, TotalQuantity: 5}, byHerb[0])
	assert.Equal(t, HerbStat{HerbName: "Neem", Count: 1, TotalQuantity: 5}, byHerb[1])

	byRegion, err := store.ByRegion(ctx, &since)
	require.NoError(t, err)
	require.Len(t, byRegion, 2)
	assert.Equal(t, "MADHYA PRADESH", byRegion[0].Region)
	assert.Equal(t, int64(2), byRegion[0].Count)
	assert.Equal(t, "RAJASTHAN", byRegion[1].Region)

	empty := newTestStore(t)
	count, total, err = empty.Totals(ctx, "nobody", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, total)
}

// newMockStore returns a Store on the postgres dialect backed by sqlmock.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewStore(db), mock
}

func TestStore_DatabaseErrors(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection reset by peer")

	t.Run("get wraps driver error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "collections"`).WillReturnError(dbErr)

		got, err := store.Get(ctx, "COL20241201001")
		assert.Nil(t, got)
		require.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "get collection")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set status wraps driver error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE "collections"`).WillReturnError(dbErr)

		err := store.SetStatus(ctx, testRecord("COL20241201001", "Tulsi", "f", 1), StatusApproved)
		require.ErrorIs(t, err, dbErr)
		var conflict *ConflictError
		assert.False(t, errors.As(err, &conflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set status with no rows is a conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE "collections"`).WillReturnResult(sqlmock.NewResult(0, 0))

		rec := testRecord("COL20241201001", "Tulsi", "f", 1)
		err := store.SetStatus(ctx, rec, StatusApproved)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, StatusCollected, rec.Status, "record must not change on conflict")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list wraps driver error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM "collections"`).WillReturnError(dbErr)

		_, _, err := store.List(ctx, Query{CollectorID: "farmer-1"})
		require.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "list collections")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
