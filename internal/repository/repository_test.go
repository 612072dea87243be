package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	Close() error
	Get(ctx context.Context, bucket, id string) (Record, error)
	List(ctx context.Context, bucket string) ([]Record, error)
	Put(ctx context.Context, rec Record) (int64, error)
	Seed(ctx context.Context, bucket string, recs []Record) (bool, error)
}

func backends(t *testing.T) map[string]func(t *testing.T) store {
	t.Helper()
	return map[string]func(t *testing.T) store{
		"memory": func(t *testing.T) store {
			return NewMemoryRepository()
		},
		"sqlite": func(t *testing.T) store {
			r, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "data", "olea.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = r.Close() })
			return r
		},
	}
}

func TestRepository_PutAndGet(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			_, err := s.Get(ctx, "work_orders", "OT-2024-001")
			assert.ErrorIs(t, err, ErrNotFound)

			v, err := s.Put(ctx, Record{Bucket: "work_orders", ID: "OT-2024-001", Payload: []byte(`{"a":1}`)})
			require.NoError(t, err)
			assert.Equal(t, int64(1), v)

			rec, err := s.Get(ctx, "work_orders", "OT-2024-001")
			require.NoError(t, err)
			assert.Equal(t, int64(1), rec.Version)
			assert.JSONEq(t, `{"a":1}`, string(rec.Payload))

			v, err = s.Put(ctx, Record{Bucket: "work_orders", ID: "OT-2024-001", Payload: []byte(`{"a":2}`), Version: 1})
			require.NoError(t, err)
			assert.Equal(t, int64(2), v)

			rec, err = s.Get(ctx, "work_orders", "OT-2024-001")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(rec.Payload))
		})
	}
}

func TestRepository_VersionConflict(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			_, err := s.Put(ctx, Record{Bucket: "expenses", ID: "EXP-1", Payload: []byte(`{}`)})
			require.NoError(t, err)

			_, err = s.Put(ctx, Record{Bucket: "expenses", ID: "EXP-1", Payload: []byte(`{}`)})
			assert.ErrorIs(t, err, ErrVersionConflict, "insert over existing record")

			_, err = s.Put(ctx, Record{Bucket: "expenses", ID: "EXP-1", Payload: []byte(`{}`), Version: 1})
			require.NoError(t, err)

			_, err = s.Put(ctx, Record{Bucket: "expenses", ID: "EXP-1", Payload: []byte(`{}`), Version: 1})
			assert.ErrorIs(t, err, ErrVersionConflict, "stale version")

			_, err = s.Put(ctx, Record{Bucket: "expenses", ID: "EXP-missing", Payload: []byte(`{}`), Version: 3})
			assert.ErrorIs(t, err, ErrVersionConflict, "update of missing record")
		})
	}
}

func TestRepository_ListIsolatedByBucket(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			for _, id := range []string{"b", "a", "c"} {
				_, err := s.Put(ctx, Record{Bucket: "players", ID: id, Payload: []byte(`{}`)})
				require.NoError(t, err)
			}
			_, err := s.Put(ctx, Record{Bucket: "employees", ID: "x", Payload: []byte(`{}`)})
			require.NoError(t, err)

			recs, err := s.List(ctx, "players")
			require.NoError(t, err)
			require.Len(t, recs, 3)
			assert.Equal(t, "a", recs[0].ID)
			assert.Equal(t, "b", recs[1].ID)
			assert.Equal(t, "c", recs[2].ID)

			empty, err := s.List(ctx, "unknown")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestRepository_SeedOnce(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			seed := []Record{
				{ID: "s1", Payload: []byte(`{"n":1}`)},
				{ID: "s2", Payload: []byte(`{"n":2}`)},
			}

			ok, err := s.Seed(ctx, "work_orders", seed)
			require.NoError(t, err)
			assert.True(t, ok)

			recs, err := s.List(ctx, "work_orders")
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, int64(1), recs[0].Version)

			_, err = s.Put(ctx, Record{Bucket: "work_orders", ID: "s1", Payload: []byte(`{"n":10}`), Version: 1})
			require.NoError(t, err)

			ok, err = s.Seed(ctx, "work_orders", seed)
			require.NoError(t, err)
			assert.False(t, ok)

			rec, err := s.Get(ctx, "work_orders", "s1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"n":10}`, string(rec.Payload), "seed must not be re-merged")
		})
	}
}

func TestSQLiteRepository_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "olea.db")

	r, err := NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	_, err = r.Seed(ctx, "employees", []Record{{ID: "EMP-001", Payload: []byte(`{}`)}})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	ok, err := r.Seed(ctx, "employees", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Get(ctx, "employees", "EMP-001")
	assert.NoError(t, err)
}
