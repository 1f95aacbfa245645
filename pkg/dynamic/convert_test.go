package dynamic

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigInt_RoundTrip(t *testing.T) {
	t.Parallel()

	huge, ok := new(big.Int).SetString(strings.Repeat("9", 120), 10)
	require.True(t, ok)
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	minInt256 := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))

	tests := []struct {
		name string
		x    *big.Int
		want string
	}{
		{name: "zero", x: big.NewInt(0), want: "0"},
		{name: "one", x: big.NewInt(1), want: "1"},
		{name: "negative", x: big.NewInt(-42), want: "-42"},
		{name: "max uint256", x: maxUint256, want: maxUint256.String()},
		{name: "min int256", x: minInt256, want: minInt256.String()},
		{name: "beyond 256 bits", x: huge, want: strings.Repeat("9", 120)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := FormatBigInt(tt.x)
			assert.Equal(t, tt.want, s)

			back, ok := ParseBigInt(s)
			require.True(t, ok)
			assert.Zero(t, tt.x.Cmp(back))

			v := BigInt(tt.x)
			assert.Equal(t, KindBigInt, v.Kind())
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestParseBigInt_Rejects(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "0x10", "1.5", " 1", "1e3", "abc", "-"} {
		_, ok := ParseBigInt(s)
		assert.False(t, ok, "input %q", s)
	}
}

func TestAsAddress_LengthBoundary(t *testing.T) {
	t.Parallel()

	ok20 := make([]byte, 20)
	ok20[19] = 0xaa
	addr, ok := AsAddress(Bytes(ok20))
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa"), addr)

	for _, n := range []int{0, 1, 19, 21, 32} {
		_, ok := AsAddress(Bytes(make([]byte, n)))
		assert.False(t, ok, "length %d", n)
		assert.True(t, Address(Bytes(make([]byte, n))).IsNull(), "length %d", n)
	}
}

func TestAsAddress_FromText(t *testing.T) {
	t.Parallel()

	addr, ok := AsAddress(Text("0x00000000000000000000000000000000000000BB"))
	require.True(t, ok)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", Address(Bytes(addr.Bytes())).String())

	_, ok = AsAddress(Text("not an address"))
	assert.False(t, ok)
	_, ok = AsAddress(Int64(5))
	assert.False(t, ok)
}

func TestBytes_CanonicalHex(t *testing.T) {
	t.Parallel()

	v := Bytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	assert.Equal(t, "0xdeadbeef", v.String())

	b, ok := ParseBytes("0XDEADbeef")
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	_, ok = ParseBytes("deadbeef")
	assert.False(t, ok)
	_, ok = ParseBytes("0xabc")
	assert.False(t, ok)
}

func TestAs_KindMismatchIsNotAnError(t *testing.T) {
	t.Parallel()

	_, ok := AsBool(Text("true"))
	assert.False(t, ok)
	_, ok = AsText(Int64(1))
	assert.False(t, ok)
	_, ok = AsBigInt(Bool(true))
	assert.False(t, ok)
	_, ok = AsSequence(Null())
	assert.False(t, ok)
	_, ok = AsMap(Sequence())
	assert.False(t, ok)

	assert.True(t, Uint(Text("12x")).IsNull())
	assert.True(t, Equal(Int64(12), Uint(Text("12"))))
}

func TestOrderedMap_KeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	m := NewOrderedMap()
	m.Set("to", Text("b"))
	m.Set("from", Text("a"))
	m.Set("value", Int64(1))
	m.Set("to", Text("c"))

	assert.Equal(t, []string{"to", "from", "value"}, m.Keys())
	got, ok := m.Get("to")
	require.True(t, ok)
	assert.Equal(t, "c", got.String())
}

func TestExpectAndParseUint(t *testing.T) {
	t.Parallel()

	v, ok := Expect(Text("x"), KindText)
	require.True(t, ok)
	assert.Equal(t, "x", v.String())

	v, ok = Expect(Text("x"), KindBigInt)
	assert.False(t, ok)
	assert.True(t, v.IsNull())

	assert.Equal(t, KindBigInt, ParseUint("-42").Kind())
	assert.Equal(t, "-42", ParseUint("-42").String())
	assert.True(t, ParseUint("4.2").IsNull())
	assert.True(t, ParseUint("").IsNull())
}
