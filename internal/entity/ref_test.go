package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDOf(t *testing.T) {
	var nilPtr *int64
	n := int64(4)

	assert.Equal(t, Unassigned, IDOf(nil).State())
	assert.Equal(t, Unassigned, IDOf(0).State())
	assert.Equal(t, Unassigned, IDOf("").State())
	assert.Equal(t, Unassigned, IDOf(nilPtr).State())
	assert.Equal(t, AssignedID(int64(4)), IDOf(&n))
	assert.Equal(t, AssignedID("p-1"), IDOf("p-1"))

	assert.Equal(t, "<unassigned>", NoID().String())
	assert.Equal(t, "42", AssignedID(42).String())
	assert.Equal(t, "assigned", Assigned.String())
	assert.Equal(t, "IDState(9)", IDState(9).String())
}

func TestKeyOf(t *testing.T) {
	var nilPtr *int64
	n := int64(0)

	assert.Equal(t, Unassigned, KeyOf(nil).State())
	assert.Equal(t, Unassigned, KeyOf(nilPtr).State())
	assert.Equal(t, AssignedID(0), KeyOf(0))
	assert.Equal(t, AssignedID(""), KeyOf(""))
	assert.Equal(t, AssignedID(int64(0)), KeyOf(&n))
	assert.Equal(t, AssignedID("p-1"), KeyOf("p-1"))
}

func TestRefStates(t *testing.T) {
	var r Ref[address]
	assert.True(t, r.IsNil())
	assert.False(t, r.IsLoaded())

	r = RefTo[address](int64(3))
	assert.False(t, r.IsNil())
	_, ok := r.Get()
	assert.False(t, ok)
	assert.Equal(t, "Unloaded(3)", r.String())

	a := &address{ID: 3, City: "Oslo"}
	r.Resolve(a)
	got, ok := r.Get()
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, "Loaded(3)", r.String())

	loaded := LoadedRef(int64(3), a)
	assert.True(t, loaded.IsLoaded())
}

func TestRefScanValue(t *testing.T) {
	var r Ref[address]

	require.NoError(t, r.Scan(int64(8)))
	assert.Equal(t, AssignedID(int64(8)), r.ID())
	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	require.NoError(t, r.Scan([]byte("a-9")))
	assert.Equal(t, AssignedID("a-9"), r.ID())

	r.Resolve(&address{ID: 9})
	require.NoError(t, r.Scan(nil))
	assert.True(t, r.IsNil())
	assert.False(t, r.IsLoaded(), "scan resets the loaded value")

	v, err = r.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRecordMapper(t *testing.T) {
	d := &Descriptor{
		Name:     "Tag",
		Table:    "tag",
		ID:       Field{Attr: "id", Column: "id", Kind: KindInt},
		Strategy: StrategyAuto,
		Fields: []Field{
			{Attr: "label", Column: "label", Kind: KindString},
			{Attr: "blob", Column: "blob", Kind: KindBytes},
		},
	}
	m := NewRecordMapper(d)
	assert.Same(t, d, m.Descriptor())

	r := m.New()
	assert.Equal(t, Unassigned, m.ID(r).State())

	(*r)["label"] = "go"
	values, err := m.Values(r)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": nil, "label": "go", "blob": nil}, values)

	require.NoError(t, m.SetID(r, []byte("12")))
	assert.Equal(t, AssignedID("12"), m.ID(r))

	scanned := m.New()
	err = m.Scan(scanned, []string{"id", "label", "blob"}, fakeScan([]any{int64(1), []byte("db"), []byte{0x1}}))
	require.NoError(t, err)
	assert.Equal(t, Record{"id": int64(1), "label": "db", "blob": []byte{0x1}}, *scanned)
}
