package dynamic

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustType(t *testing.T, typ string, components ...abi.ArgumentMarshaling) abi.Type {
	t.Helper()
	ty, err := abi.NewType(typ, "", components)
	require.NoError(t, err)
	return ty
}

func TestFromABI_Scalars(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tests := []struct {
		name string
		typ  string
		in   any
		want Value
	}{
		{name: "uint8 native", typ: "uint8", in: uint8(7), want: Int64(7)},
		{name: "int64 native", typ: "int64", in: int64(-3), want: Int64(-3)},
		{name: "uint256 big", typ: "uint256", in: big.NewInt(1000), want: Int64(1000)},
		{name: "bool", typ: "bool", in: true, want: Bool(true)},
		{name: "string", typ: "string", in: "hello", want: Text("hello")},
		{name: "address", typ: "address", in: addr, want: Bytes(addr.Bytes())},
		{name: "bytes", typ: "bytes", in: []byte{1, 2}, want: Bytes([]byte{1, 2})},
		{name: "bytes4", typ: "bytes4", in: [4]byte{0xde, 0xad, 0xbe, 0xef}, want: Bytes([]byte{0xde, 0xad, 0xbe, 0xef})},
		{name: "hashed indexed string", typ: "string", in: common.Hash{0x01}, want: Bytes(common.Hash{0x01}.Bytes())},
		{name: "nil big", typ: "uint256", in: (*big.Int)(nil), want: Null()},
		{name: "wrong shape", typ: "bool", in: "yes", want: Null()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FromABI(mustType(t, tt.typ), tt.in)
			assert.True(t, Equal(tt.want, got), "want %s got %s", tt.want, got)
		})
	}
}

func TestFromABI_SequenceOfAddresses(t *testing.T) {
	t.Parallel()

	in := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}
	got := FromABI(mustType(t, "address[]"), in)

	assert.Equal(t,
		`["0x0000000000000000000000000000000000000001","0x0000000000000000000000000000000000000002"]`,
		got.String(),
	)
}

func TestFromABI_TupleFromDecoder(t *testing.T) {
	t.Parallel()

	ty := mustType(t, "tuple",
		abi.ArgumentMarshaling{Name: "owner", Type: "address"},
		abi.ArgumentMarshaling{Name: "amount", Type: "uint256"},
		abi.ArgumentMarshaling{Name: "flags", Type: "uint8[]"},
	)
	args := abi.Arguments{{Name: "position", Type: ty}}

	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	in := struct {
		Owner  common.Address
		Amount *big.Int
		Flags  []uint8
	}{owner, big.NewInt(5), []uint8{1, 2}}

	packed, err := args.Pack(in)
	require.NoError(t, err)
	unpacked, err := args.Unpack(packed)
	require.NoError(t, err)
	require.Len(t, unpacked, 1)

	got := FromABI(ty, unpacked[0])
	m, ok := AsMap(got)
	require.True(t, ok)
	assert.Equal(t, []string{"owner", "amount", "flags"}, m.Keys())
	assert.Equal(t,
		`{"owner":"0x00000000000000000000000000000000000000aa","amount":"5","flags":["1","2"]}`,
		got.String(),
	)
}
