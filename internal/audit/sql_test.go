package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmyyl/xpert-framework/internal/store"
	"github.com/slmyyl/xpert-framework/internal/testutil"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	st, err := store.Open(context.Background(), store.Options{DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, EnsureSchema(context.Background(), st))
	return st
}

func newTestRecorder(st *store.Store) *SQLRecorder {
	return NewSQLRecorder(st,
		WithClock(testutil.NewStepClock(time.Second).Now),
		WithIDGenerator(testutil.NewSequentialIDs("audit").NewID),
	)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	st := createTestStore(t)
	require.NoError(t, EnsureSchema(context.Background(), st))

	var n int
	err := st.DB().QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLRecorder_HistoryOrdersSubSecondTimes(t *testing.T) {
	st := createTestStore(t)
	rec := newTestRecorder(st)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	offsets := []time.Duration{
		0,
		500 * time.Millisecond,
		time.Second + 100*time.Millisecond,
		time.Second + 150*time.Millisecond,
		2 * time.Second,
	}
	for i, off := range offsets {
		require.NoError(t, rec.Record(ctx, Entry{
			// ids run against time so only recorded_at can order them
			ID:         fmt.Sprintf("e-%d", len(offsets)-i),
			Entity:     "Person",
			EntityID:   "1",
			Operation:  OpUpdate,
			RecordedAt: base.Add(off),
		}))
	}

	history, err := rec.History(ctx, "Person", "1")
	require.NoError(t, err)
	require.Len(t, history, len(offsets))
	for i, off := range offsets {
		assert.True(t, base.Add(off).Equal(history[i].RecordedAt), "entry %d: %s", i, history[i].RecordedAt)
	}

	var stored string
	require.NoError(t, st.DB().QueryRow("SELECT recorded_at FROM audit_log WHERE id = 'e-5'").Scan(&stored))
	assert.Equal(t, "2026-01-02T03:04:05.000000000Z", stored)
}

func TestSQLRecorder_RecordAndHistory(t *testing.T) {
	st := createTestStore(t)
	rec := newTestRecorder(st)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, Entry{
		Entity:    "Person",
		EntityID:  "1",
		Operation: OpInsert,
		After:     map[string]any{"id": int64(1), "name": "Ann", "age": int64(30), "email": nil},
	}))
	require.NoError(t, rec.Record(ctx, Entry{
		Entity:    "Person",
		EntityID:  "1",
		Operation: OpUpdate,
		Before:    map[string]any{"id": int64(1), "name": "Ann"},
		After:     map[string]any{"id": int64(1), "name": "Anna"},
	}))
	require.NoError(t, rec.Record(ctx, Entry{
		Entity:    "Person",
		EntityID:  "2",
		Operation: OpDelete,
		Before:    map[string]any{"id": int64(2)},
	}))

	var stored string
	err := st.DB().QueryRow("SELECT after_state FROM audit_log WHERE id = 'audit-0001'").Scan(&stored)
	require.NoError(t, err)
	assert.Equal(t, `{"age":30,"email":null,"id":1,"name":"Ann"}`, stored)

	history, err := rec.History(ctx, "Person", "1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "audit-0001", history[0].ID)
	assert.Equal(t, OpInsert, history[0].Operation)
	assert.Nil(t, history[0].Before)
	assert.Equal(t, testutil.Epoch, history[0].RecordedAt)

	assert.Equal(t, OpUpdate, history[1].Operation)
	assert.Equal(t, "Ann", history[1].Before["name"])
	assert.Equal(t, "Anna", history[1].After["name"])
	assert.Equal(t, testutil.Epoch.Add(time.Second), history[1].RecordedAt)

	all, err := rec.History(ctx, "Person", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Nil(t, all[2].After)

	none, err := rec.History(ctx, "Order", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLRecorder_QueryEntry(t *testing.T) {
	st := createTestStore(t)
	rec := newTestRecorder(st)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, Entry{
		Entity:    "Person",
		Operation: OpQuery,
		Statement: "SELECT t0.id FROM people t0",
	}))

	history, err := rec.History(ctx, "Person", "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "SELECT t0.id FROM people t0", history[0].Statement)
	assert.Empty(t, history[0].EntityID)
}

func TestSQLRecorder_Rejects(t *testing.T) {
	st := createTestStore(t)
	rec := newTestRecorder(st)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry Entry
	}{
		{"unknown operation", Entry{Entity: "Person", Operation: "upsert"}},
		{"missing entity", Entry{Operation: OpInsert}},
		{"unsupported snapshot", Entry{Entity: "Person", Operation: OpInsert, After: map[string]any{"x": struct{}{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, rec.Record(ctx, tt.entry))
		})
	}
}

func TestSQLRecorder_FollowsTransaction(t *testing.T) {
	st := createTestStore(t)
	rec := newTestRecorder(st)
	ctx := context.Background()
	boom := errors.New("rollback")

	err := st.WithTx(ctx, nil, func(ctx context.Context) error {
		if err := rec.Record(ctx, Entry{Entity: "Person", EntityID: "1", Operation: OpInsert}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	history, err := rec.History(ctx, "Person", "")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, Entry{Entity: "Person", Operation: OpInsert}))
	assert.Error(t, m.Record(ctx, Entry{Entity: "Person", Operation: "bogus"}))

	boom := errors.New("down")
	m.FailWith(boom)
	assert.ErrorIs(t, m.Record(ctx, Entry{Entity: "Person", Operation: OpDelete}), boom)
	m.FailWith(nil)

	entries := m.Entries()
	require.Len(t, entries, 1)
	entries[0].Entity = "changed"
	assert.Equal(t, "Person", m.Entries()[0].Entity)

	m.Reset()
	assert.Empty(t, m.Entries())
}
