package dao

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slmyyl/xpert-framework/internal/audit"
	"github.com/slmyyl/xpert-framework/internal/store"
	"github.com/slmyyl/xpert-framework/internal/testutil"
)

// testEnv is a seeded sqlite store with one DAO per fixture entity, all
// recording into the same in-memory audit log.
type testEnv struct {
	st        *store.Store
	fx        *testutil.Fixtures
	rec       *audit.Memory
	logs      *bytes.Buffer
	people    *DAO[testutil.Person]
	addresses *DAO[testutil.Address]
	orders    *DAO[testutil.Order]
	tags      *DAO[testutil.Tag]
}

// createTestStore creates a file-backed sqlite store holding the fixture
// seed rows.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dao.db")
	st, err := store.Open(ctx, store.Options{DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, testutil.Seed(ctx, st.DB()))
	return st
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		st:   createTestStore(t),
		fx:   testutil.NewFixtures(),
		rec:  audit.NewMemory(),
		logs: &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	all := append([]Option{WithRecorder(env.rec), WithLogger(logger)}, opts...)

	var err error
	env.people, err = New[testutil.Person](env.st, env.fx.Registry, env.fx.People, all...)
	require.NoError(t, err)
	env.addresses, err = New[testutil.Address](env.st, env.fx.Registry, env.fx.Addresses, all...)
	require.NoError(t, err)
	env.orders, err = New[testutil.Order](env.st, env.fx.Registry, env.fx.Orders, all...)
	require.NoError(t, err)
	env.tags, err = New[testutil.Tag](env.st, env.fx.Registry, env.fx.Tags, all...)
	require.NoError(t, err)
	return env
}

func names(people []*testutil.Person) []string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.Name
	}
	return out
}

func strPtr(s string) *string { return &s }
