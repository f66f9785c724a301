package dao

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmyyl/xpert-framework/internal/audit"
	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/query"
	"github.com/slmyyl/xpert-framework/internal/testutil"
)

func TestSave_AssignsGeneratedID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dee := &testutil.Person{
		Name:    "Dee",
		Age:     25,
		Email:   strPtr("dee@example.com"),
		Address: entity.RefTo[testutil.Address](int64(2)),
	}
	require.NoError(t, env.people.Save(ctx, dee))
	assert.Equal(t, int64(4), dee.ID)

	found, err := env.people.Find(ctx, dee.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, dee.Name, found.Name)
	assert.Equal(t, dee.Age, found.Age)
	assert.Equal(t, *dee.Email, *found.Email)
	assert.Equal(t, dee.Address.ID(), found.Address.ID())

	entries := env.rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OpInsert, entries[0].Operation)
	assert.Equal(t, "Person", entries[0].Entity)
	assert.Equal(t, "4", entries[0].EntityID)
	assert.Nil(t, entries[0].Before)
	assert.Equal(t, int64(4), entries[0].After["id"])
	assert.Equal(t, "Dee", entries[0].After["name"])
	assert.Equal(t, int64(2), entries[0].After["address"])
}

func TestSave_UUIDStrategy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := &testutil.Order{Person: entity.RefTo[testutil.Person](int64(3)), Total: 7.25}
	require.NoError(t, env.orders.Save(ctx, o))

	parsed, err := uuid.Parse(o.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	n, err := env.orders.Count(ctx, query.New().Eq("person", 3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSave_IdentifierState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.people.Save(ctx, &testutil.Person{ID: 9, Name: "Preset", Age: 1})
	assert.True(t, IsIllegalState(err), "generated id already set: %v", err)

	err = env.orders.Save(ctx, &testutil.Order{ID: "fixed", Person: entity.RefTo[testutil.Person](int64(1))})
	assert.True(t, IsIllegalState(err))

	err = env.tags.Save(ctx, &testutil.Tag{Label: "no code"})
	assert.True(t, IsIllegalState(err), "assigned id missing: %v", err)

	require.NoError(t, env.tags.Save(ctx, &testutil.Tag{Code: "vip", Label: "Very important"}))
	err = env.tags.Save(ctx, &testutil.Tag{Code: "vip", Label: "again"})
	assert.Error(t, err, "duplicate primary key")

	assert.True(t, IsIllegalState(env.people.Save(ctx, nil)))
}

func TestSave_ForeignKeyViolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := &testutil.Order{Person: entity.RefTo[testutil.Person](int64(99)), Total: 1}
	assert.Error(t, env.orders.Save(ctx, o))
	assert.Empty(t, env.rec.Entries())
	assert.Empty(t, o.ID, "a failed insert leaves the identifier unassigned")

	o.Person = entity.RefTo[testutil.Person](int64(3))
	require.NoError(t, env.orders.Save(ctx, o), "the entity can be saved again")
	assert.NotEmpty(t, o.ID)
}

func TestSave_FailedInsertKeepsGeneratedIDUnassigned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// person_id is NOT NULL
	o := &testutil.Order{Total: 1}
	require.Error(t, env.orders.Save(ctx, o))
	assert.Empty(t, o.ID)

	p := &testutil.Person{Name: "Nia", Age: 29, Address: entity.RefTo[testutil.Address](int64(42))}
	require.Error(t, env.people.Save(ctx, p))
	assert.Zero(t, p.ID)

	p.Address = entity.RefTo[testutil.Address](int64(1))
	require.NoError(t, env.people.Save(ctx, p))
	assert.NotZero(t, p.ID)
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ann, err := env.people.Find(ctx, 1)
	require.NoError(t, err)
	ann.Age = 31
	ann.Email = nil
	require.NoError(t, env.people.Update(ctx, ann))

	reloaded, err := env.people.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 31, reloaded.Age)
	assert.Nil(t, reloaded.Email)

	entries := env.rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OpUpdate, entries[0].Operation)
	assert.Equal(t, int64(30), entries[0].Before["age"])
	assert.Equal(t, "ann@example.com", entries[0].Before["email"])
	assert.Equal(t, int64(31), entries[0].After["age"])
	assert.Nil(t, entries[0].After["email"])

	err = env.people.Update(ctx, &testutil.Person{ID: 99, Name: "Ghost"})
	assert.True(t, IsNotFound(err), "got %v", err)

	err = env.people.Update(ctx, &testutil.Person{Name: "Nobody"})
	assert.True(t, IsIllegalState(err))
}

func TestSaveOrUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eve := &testutil.Person{Name: "Eve", Age: 50}
	require.NoError(t, env.people.SaveOrUpdate(ctx, eve))
	assert.Equal(t, int64(4), eve.ID)

	eve.Age = 51
	require.NoError(t, env.people.SaveOrUpdate(ctx, eve))
	got, err := env.people.Find(ctx, eve.ID)
	require.NoError(t, err)
	assert.Equal(t, 51, got.Age)

	tag := &testutil.Tag{Code: "new", Label: "first"}
	require.NoError(t, env.tags.SaveOrUpdate(ctx, tag))
	tag.Label = "second"
	require.NoError(t, env.tags.SaveOrUpdate(ctx, tag))
	stored, err := env.tags.Find(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "second", stored.Label)

	ops := []audit.Operation{}
	for _, e := range env.rec.Entries() {
		ops = append(ops, e.Operation)
	}
	assert.Equal(t, []audit.Operation{audit.OpInsert, audit.OpUpdate, audit.OpInsert, audit.OpUpdate}, ops)
}

func TestMerge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("existing row is updated", func(t *testing.T) {
		detached := &testutil.Person{ID: 2, Name: "Robert", Age: 41}
		merged, err := env.people.Merge(ctx, detached)
		require.NoError(t, err)
		require.NotNil(t, merged)
		assert.NotSame(t, detached, merged)
		assert.Equal(t, "Robert", merged.Name)
		assert.Equal(t, 41, merged.Age)
		assert.True(t, merged.Address.IsNil(), "detached state wins, including NULLs")
	})

	t.Run("missing row is inserted with its id", func(t *testing.T) {
		merged, err := env.people.Merge(ctx, &testutil.Person{ID: 10, Name: "Ten", Age: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(10), merged.ID)
	})

	t.Run("unassigned id is generated", func(t *testing.T) {
		detached := &testutil.Person{Name: "Fresh", Age: 1}
		merged, err := env.people.Merge(ctx, detached)
		require.NoError(t, err)
		assert.Equal(t, int64(11), merged.ID)
		assert.Zero(t, detached.ID, "the argument is left untouched")

		o, err := env.orders.Merge(ctx, &testutil.Order{Person: entity.RefTo[testutil.Person](int64(1)), Total: 3})
		require.NoError(t, err)
		assert.NotEmpty(t, o.ID)
	})

	t.Run("assigned strategy needs an id", func(t *testing.T) {
		_, err := env.tags.Merge(ctx, &testutil.Tag{Label: "x"})
		assert.True(t, IsIllegalState(err))
	})

	var merges []audit.Entry
	for _, e := range env.rec.Entries() {
		if e.Operation == audit.OpMerge {
			merges = append(merges, e)
		}
	}
	require.Len(t, merges, 4)
	assert.Equal(t, "Bob", merges[0].Before["name"])
	assert.Equal(t, "Robert", merges[0].After["name"])
	assert.Nil(t, merges[1].Before)
}

func TestSaveOrMerge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fresh := &testutil.Person{Name: "Gus", Age: 60}
	got, err := env.people.SaveOrMerge(ctx, fresh)
	require.NoError(t, err)
	assert.Same(t, fresh, got)
	assert.Equal(t, int64(4), fresh.ID)

	got, err = env.people.SaveOrMerge(ctx, &testutil.Person{ID: 4, Name: "Gus", Age: 61})
	require.NoError(t, err)
	assert.Equal(t, 61, got.Age)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.people.Delete(ctx, 3))
	gone, err := env.people.Find(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, gone)

	entries := env.rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OpDelete, entries[0].Operation)
	assert.Equal(t, "Cid", entries[0].Before["name"])
	assert.Nil(t, entries[0].After)

	err = env.people.Delete(ctx, 99)
	var delErr *DeleteError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, "Person", delErr.Entity)
	assert.True(t, IsNotFound(err))

	// Ann still owns orders
	err = env.people.Delete(ctx, 1)
	assert.True(t, IsDeleteError(err))
	assert.False(t, IsNotFound(err))

	err = env.people.Delete(ctx, 0)
	require.ErrorAs(t, err, &delErr)
	assert.True(t, IsNotFound(err), "zero is a missing key, got %v", err)

	assert.True(t, IsIllegalState(env.people.Delete(ctx, nil)))
}

func TestDeleteIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.people.DeleteIn(ctx, env.fx.Orders.Descriptor(), "o-3"))
	n, err := env.orders.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stray := entity.MustDescribe[testutil.Tag]("Tag", "tag").Descriptor()
	assert.True(t, IsIllegalState(env.people.DeleteIn(ctx, stray, "x")))
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cid, err := env.people.Find(ctx, 3)
	require.NoError(t, err)
	cid.Name = "stale in memory"
	require.NoError(t, env.people.Remove(ctx, cid))

	entries := env.rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "stale in memory", entries[0].Before["name"], "before-state comes from the object")

	err = env.people.Remove(ctx, cid)
	assert.True(t, IsNotFound(err))
}

func TestAuditPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	quiet := env.people.WithoutAudit()
	assert.False(t, quiet.IsAudited())
	assert.True(t, env.people.IsAudited(), "views do not change their parent")
	require.NoError(t, quiet.Save(ctx, &testutil.Person{Name: "Hal", Age: 20}))
	assert.Empty(t, env.rec.Entries())

	loud := quiet.Audited()
	require.NoError(t, loud.Save(ctx, &testutil.Person{Name: "Ida", Age: 21}))
	assert.Len(t, env.rec.Entries(), 1)

	off := newTestEnv(t, WithAudit(false))
	require.NoError(t, off.people.Save(ctx, &testutil.Person{Name: "Jo", Age: 22}))
	assert.Empty(t, off.rec.Entries())
}

func TestAuditFailure_InsideTransactionAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	boom := errors.New("audit store down")
	env.rec.FailWith(boom)

	kim := &testutil.Person{Name: "Kim", Age: 33}
	err := env.st.WithTx(ctx, nil, func(ctx context.Context) error {
		return env.people.Save(ctx, kim)
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, kim.ID, "a rolled back save assigns no identifier")

	n, err := env.people.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "the write rolled back with the audit failure")

	env.rec.FailWith(nil)
	require.NoError(t, env.st.WithTx(ctx, nil, func(ctx context.Context) error {
		return env.people.Save(ctx, kim)
	}))
	assert.NotZero(t, kim.ID)
	require.Len(t, env.rec.Entries(), 1)
}

func TestAuditFailure_OutsideTransactionIsLogged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.rec.FailWith(errors.New("audit store down"))

	require.NoError(t, env.people.Save(ctx, &testutil.Person{Name: "Lou", Age: 44}))

	n, err := env.people.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Contains(t, env.logs.String(), "audit entry dropped")
}

func TestWithTx_UnitOfWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	boom := errors.New("abort")

	err := env.st.WithTx(ctx, nil, func(ctx context.Context) error {
		mo := &testutil.Person{Name: "Mo", Age: 18}
		if err := env.people.Save(ctx, mo); err != nil {
			return err
		}
		if err := env.orders.Save(ctx, &testutil.Order{Person: entity.RefTo[testutil.Person](mo.ID), Total: 9}); err != nil {
			return err
		}
		// reads inside the transaction see its writes
		n, err := env.orders.Count(ctx, query.New().Eq("person", mo.ID))
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	people, err := env.people.Count(ctx, nil)
	require.NoError(t, err)
	orders, err := env.orders.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), people)
	assert.Equal(t, int64(3), orders)
}
