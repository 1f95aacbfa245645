package store

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
)

func newTestAccessor(t *testing.T) (*Accessor, *Store) {
	t.Helper()
	st := New(NewMemoryBackend())
	return NewAccessor(st, zap.NewNop().Sugar(), nil), st
}

func TestAccessor_DeltasInWriteOrder(t *testing.T) {
	t.Parallel()

	acc, _ := newTestAccessor(t)
	acc.Set(dynamic.Text("k1"), dynamic.Text("v1"))
	acc.Set(dynamic.Text("k2"), dynamic.Text("v2"))

	assert.Equal(t,
		`[{"operation":"create","ordinal":"1","key":"k1","oldValue":null,"newValue":"v1"},`+
			`{"operation":"create","ordinal":"2","key":"k2","oldValue":null,"newValue":"v2"}]`,
		acc.Deltas().String(),
	)
}

func TestAccessor_SetManyConsumesOneOrdinalPerKey(t *testing.T) {
	t.Parallel()

	acc, st := newTestAccessor(t)
	acc.SetMany(dynamic.Sequence(dynamic.Text("a"), dynamic.Int64(1), dynamic.Text("b")), dynamic.Int64(5))
	acc.Set(dynamic.Text("c"), dynamic.Bool(true))

	deltas := st.Deltas()
	require.Len(t, deltas, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{deltas[0].Ordinal, deltas[1].Ordinal, deltas[2].Ordinal})
	assert.Equal(t, []string{"a", "b", "c"}, []string{deltas[0].Key, deltas[1].Key, deltas[2].Key})
	assert.Equal(t, `"5"`, string(deltas[0].NewValue))
}

func TestAccessor_SetIfNotExists(t *testing.T) {
	t.Parallel()

	acc, st := newTestAccessor(t)
	acc.SetIfNotExists(dynamic.Text("first"), dynamic.Text("a"))
	acc.SetIfNotExists(dynamic.Text("first"), dynamic.Text("b"))
	acc.SetIfNotExistsMany(dynamic.Sequence(dynamic.Text("first"), dynamic.Text("second")), dynamic.Text("c"))

	assert.Equal(t, "a", acc.Get(dynamic.Text("first")).String())
	assert.Equal(t, "c", acc.Get(dynamic.Text("second")).String())

	deltas := st.Deltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, uint64(1), deltas[0].Ordinal)
	assert.Equal(t, uint64(4), deltas[1].Ordinal)
}

func TestAccessor_DeletePrefix(t *testing.T) {
	t.Parallel()

	acc, st := newTestAccessor(t)
	acc.Set(dynamic.Text("pool:1"), dynamic.Text("x"))
	acc.Set(dynamic.Text("pool:2"), dynamic.Text("y"))
	acc.DeletePrefix(dynamic.Text("pool:"))
	acc.Set(dynamic.Text("pool:3"), dynamic.Text("z"))

	deltas := st.Deltas()
	require.Len(t, deltas, 5)
	for i, d := range deltas {
		assert.Equal(t, uint64(i+1), d.Ordinal)
	}
	assert.True(t, acc.Get(dynamic.Text("pool:1")).IsNull())
	assert.Equal(t, "z", acc.Get(dynamic.Text("pool:3")).String())

	// Nothing matches, so no ordinal is used.
	acc.DeletePrefix(dynamic.Text("none:"))
	acc.Set(dynamic.Text("after"), dynamic.Text("w"))
	assert.Equal(t, uint64(6), st.Deltas()[5].Ordinal)
}

func TestAccessor_DropsUnconvertibleInput(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zap.WarnLevel)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	st := New(NewMemoryBackend())
	acc := NewAccessor(st, zap.New(core).Sugar(), m)

	acc.Set(dynamic.Int64(1), dynamic.Text("v"))
	acc.Set(dynamic.Text("k"), dynamic.Null())
	acc.SetMany(dynamic.Text("not a list"), dynamic.Text("v"))
	acc.DeletePrefix(dynamic.Bool(true))
	acc.Set(dynamic.Text("k"), dynamic.Text("v"))

	assert.Equal(t, 4, recorded.FilterMessage("dropping store write").Len())
	deltas := st.Deltas()
	require.Len(t, deltas, 1)
	// Dropped writes consumed no ordinal.
	assert.Equal(t, uint64(1), deltas[0].Ordinal)
}

func TestAccessor_Reads(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	require.NoError(t, backend.Apply([]Delta{{Operation: OperationCreate, Key: "supply", NewValue: []byte(`"100"`)}}))
	st := New(backend)
	acc := NewAccessor(st, nil, nil)

	value := dynamic.MapOf("owner", dynamic.Bytes(make([]byte, 20)), "amount", dynamic.Int64(7))
	acc.Set(dynamic.Text("pos"), value)
	acc.Set(dynamic.Text("supply"), dynamic.Int64(150))
	acc.Set(dynamic.Text("supply"), dynamic.Int64(175))

	pos := acc.Get(dynamic.Text("pos"))
	assert.Equal(t, value.String(), pos.String())

	amount, ok := dynamic.AsMap(pos)
	require.True(t, ok)
	v, _ := amount.Get("amount")
	n, ok := dynamic.AsBigInt(v)
	require.True(t, ok)
	assert.Equal(t, int64(7), n.Int64())

	assert.Equal(t, "175", acc.Get(dynamic.Text("supply")).String())
	assert.Equal(t, "100", acc.GetFirst(dynamic.Text("supply")).String())
	assert.Equal(t, "150", acc.GetAt(dynamic.Text("2"), dynamic.Text("supply")).String())
	assert.Equal(t, "100", acc.GetAt(dynamic.Int64(1), dynamic.Text("supply")).String())

	assert.True(t, acc.Get(dynamic.Text("missing")).IsNull())
	assert.True(t, acc.Get(dynamic.Int64(3)).IsNull())
	assert.True(t, acc.GetAt(dynamic.Text("-1"), dynamic.Text("supply")).IsNull())
}

func TestAccessor_ReadsExternalForm(t *testing.T) {
	t.Parallel()

	acc, _ := newTestAccessor(t)
	acc.Set(dynamic.Text("n"), dynamic.Int64(42))
	acc.Set(dynamic.Text("b"), dynamic.Bytes([]byte{0xca, 0xfe}))

	n := acc.Get(dynamic.Text("n"))
	assert.Equal(t, dynamic.KindText, n.Kind())
	i, ok := dynamic.AsBigInt(n)
	require.True(t, ok)
	assert.Equal(t, int64(42), i.Int64())

	b := acc.Get(dynamic.Text("b"))
	assert.Equal(t, dynamic.KindText, b.Kind())
	raw, ok := dynamic.AsBytes(b)
	require.True(t, ok)
	assert.Equal(t, []byte{0xca, 0xfe}, raw)

	assert.True(t, acc.GetFirst(dynamic.Text("n")).IsNull())
}

func TestProjectDeltas(t *testing.T) {
	t.Parallel()

	got := ProjectDeltas([]Delta{
		{Operation: OperationUpdate, Ordinal: 3, Key: "k", OldValue: []byte(`"1"`), NewValue: []byte(`"2"`)},
		{Operation: OperationDelete, Ordinal: 4, Key: "k", OldValue: []byte(`"2"`)},
		{Operation: OperationCreate, Ordinal: 5, Key: "bad", NewValue: []byte(`{`)},
	})

	assert.Equal(t,
		`[{"operation":"update","ordinal":"3","key":"k","oldValue":"1","newValue":"2"},`+
			`{"operation":"delete","ordinal":"4","key":"k","oldValue":"2","newValue":null},`+
			`{"operation":"create","ordinal":"5","key":"bad","oldValue":null,"newValue":null}]`,
		got.String(),
	)
	assert.Equal(t, 0, ProjectDeltas(nil).Len())
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"set", "set_if_not_exists", "get"} {
		p, err := ParsePolicy(s)
		require.NoError(t, err)
		assert.Equal(t, Policy(s), p)
	}
	_, err := ParsePolicy("append")
	require.Error(t, err)
}
