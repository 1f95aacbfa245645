package bindings

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/descriptor"
	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
)

var (
	fromAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	toAddr    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, call, blockNumber)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func mustABIType(t *testing.T, typ string) abi.Type {
	t.Helper()
	ty, err := abi.NewType(typ, "", nil)
	require.NoError(t, err)
	return ty
}

func transferBlock(t *testing.T, emitter common.Address) *chain.Block {
	t.Helper()
	data, err := abi.Arguments{{Type: mustABIType(t, "uint256")}}.Pack(big.NewInt(1000))
	require.NoError(t, err)
	return &chain.Block{
		Number: big.NewInt(18_000_000),
		Logs: []*chain.Log{{
			Address: emitter,
			Topics: []common.Hash{
				common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
				common.BytesToHash(fromAddr.Bytes()),
				common.BytesToHash(toAddr.Bytes()),
			},
			Data: data,
		}},
	}
}

func erc20Accessor(t *testing.T, kind Kind, name string) Accessor {
	t.Helper()
	table, err := Generate(loadERC20(t))
	require.NoError(t, err)
	acc, ok := table.Lookup(kind, name)
	require.True(t, ok)
	return acc
}

func TestEventAccessor_TransferEndToEnd(t *testing.T) {
	t.Parallel()

	acc := erc20Accessor(t, KindEvent, "transfer")
	blk := transferBlock(t, tokenAddr)

	got := acc.Invoke(t.Context(), Env{}, blk, dynamic.Null())
	require.Equal(t, dynamic.KindSequence, got.Kind())
	require.Equal(t, 1, got.Len())
	assert.Equal(t,
		`[{"from":"0x00000000000000000000000000000000000000aa","to":"0x00000000000000000000000000000000000000bb","value":"1000"}]`,
		got.String(),
	)

	filtered := acc.Invoke(t.Context(), Env{}, blk,
		dynamic.Sequence(dynamic.Text("0x00000000000000000000000000000000000000cc")))
	assert.True(t, filtered.IsNull())
}

func TestEventAccessor_AddressFilter(t *testing.T) {
	t.Parallel()

	acc := erc20Accessor(t, KindEvent, "Transfer")
	blk := transferBlock(t, tokenAddr)

	tests := []struct {
		name    string
		filter  dynamic.Value
		matches bool
	}{
		{name: "absent", filter: dynamic.Null(), matches: true},
		{name: "empty list", filter: dynamic.Sequence(), matches: true},
		{name: "emitter as text", filter: dynamic.Sequence(dynamic.Text(tokenAddr.Hex())), matches: true},
		{name: "emitter as bytes", filter: dynamic.Sequence(dynamic.Bytes(tokenAddr.Bytes())), matches: true},
		{name: "single address", filter: dynamic.Text(tokenAddr.Hex()), matches: true},
		{name: "emitter among invalid", filter: dynamic.Sequence(dynamic.Text("0x1234"), dynamic.Text(tokenAddr.Hex())), matches: true},
		{name: "other address", filter: dynamic.Sequence(dynamic.Text(fromAddr.Hex())), matches: false},
		{name: "only invalid entries", filter: dynamic.Sequence(dynamic.Text("0x1234"), dynamic.Int64(7)), matches: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := acc.Invoke(t.Context(), Env{}, blk, tt.filter)
			assert.Equal(t, tt.matches, !got.IsNull())
		})
	}
}

func TestEventAccessor_LogsDroppedFilterEntries(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zap.WarnLevel)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	acc := erc20Accessor(t, KindEvent, "transfer")
	env := Env{Log: zap.New(core).Sugar(), Metrics: m}
	acc.Invoke(t.Context(), env, transferBlock(t, tokenAddr), dynamic.Sequence(dynamic.Text("not an address")))

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, "dropping address filter entry", entry.Message)
	assert.Equal(t, "transfer", entry.ContextMap()["accessor"])
}

func TestEventAccessor_NoMatchesIsEmpty(t *testing.T) {
	t.Parallel()

	acc := erc20Accessor(t, KindEvent, "approval")
	assert.True(t, acc.Invoke(t.Context(), Env{}, transferBlock(t, tokenAddr), dynamic.Null()).IsNull())
	assert.True(t, acc.Invoke(t.Context(), Env{}, &chain.Block{}, dynamic.Null()).IsNull())
	assert.True(t, acc.Invoke(t.Context(), Env{}, nil, dynamic.Null()).IsNull())
}

func TestCallAccessor_Decimals(t *testing.T) {
	t.Parallel()

	out, err := abi.Arguments{{Type: mustABIType(t, "uint8")}}.Pack(uint8(18))
	require.NoError(t, err)

	caller := &mockCaller{}
	caller.On("CallContract",
		mock.Anything,
		mock.MatchedBy(func(msg ethereum.CallMsg) bool {
			return msg.To != nil && *msg.To == tokenAddr && common.Bytes2Hex(msg.Data) == "313ce567"
		}),
		big.NewInt(18_000_000),
	).Return(out, nil).Once()

	acc := erc20Accessor(t, KindCall, "decimals")
	got := acc.Invoke(t.Context(), Env{Caller: caller}, &chain.Block{Number: big.NewInt(18_000_000)}, dynamic.Text(tokenAddr.Hex()))

	assert.Equal(t, dynamic.KindBigInt, got.Kind())
	assert.Equal(t, "18", got.String())
	caller.AssertExpectations(t)
}

func TestCallAccessor_FailuresAreEmpty(t *testing.T) {
	t.Parallel()

	acc := erc20Accessor(t, KindCall, "name")
	blk := &chain.Block{Number: big.NewInt(1)}

	t.Run("target not an address", func(t *testing.T) {
		t.Parallel()
		caller := &mockCaller{}
		got := acc.Invoke(t.Context(), Env{Caller: caller}, blk, dynamic.Text("0xabcd"))
		assert.True(t, got.IsNull())
		caller.AssertNotCalled(t, "CallContract", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rpc error", func(t *testing.T) {
		t.Parallel()
		caller := &mockCaller{}
		caller.On("CallContract", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("execution reverted"))
		assert.True(t, acc.Invoke(t.Context(), Env{Caller: caller}, blk, dynamic.Text(tokenAddr.Hex())).IsNull())
	})

	t.Run("empty return data", func(t *testing.T) {
		t.Parallel()
		caller := &mockCaller{}
		caller.On("CallContract", mock.Anything, mock.Anything, mock.Anything).Return([]byte{}, nil)
		assert.True(t, acc.Invoke(t.Context(), Env{Caller: caller}, blk, dynamic.Text(tokenAddr.Hex())).IsNull())
	})

	t.Run("no caller", func(t *testing.T) {
		t.Parallel()
		assert.True(t, acc.Invoke(t.Context(), Env{}, blk, dynamic.Text(tokenAddr.Hex())).IsNull())
	})
}

func TestCallAccessor_MultipleOutputs(t *testing.T) {
	t.Parallel()

	table, err := Generate(mustParse(t, "pair", `[
		{"type":"function","name":"getReserves","inputs":[],"stateMutability":"view","outputs":[
			{"name":"reserve0","type":"uint112"},
			{"name":"reserve1","type":"uint112"},
			{"name":"","type":"uint32"}
		]}
	]`))
	require.NoError(t, err)
	acc, ok := table.Lookup(KindCall, "getreserves")
	require.True(t, ok)
	assert.Equal(t, "(address) -> {reserve0: bigint, reserve1: bigint, arg2: bigint} | empty", acc.Spec().Signature)

	out, err := abi.Arguments{
		{Type: mustABIType(t, "uint112")},
		{Type: mustABIType(t, "uint112")},
		{Type: mustABIType(t, "uint32")},
	}.Pack(big.NewInt(5), big.NewInt(7), uint32(1700000000))
	require.NoError(t, err)

	caller := &mockCaller{}
	caller.On("CallContract", mock.Anything, mock.Anything, (*big.Int)(nil)).Return(out, nil)

	got := acc.Invoke(t.Context(), Env{Caller: caller}, nil, dynamic.Text(tokenAddr.Hex()))
	assert.Equal(t, `{"reserve0":"5","reserve1":"7","arg2":"1700000000"}`, got.String())
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	pair := mustParse(t, "pair", `[{"type":"event","name":"Sync","inputs":[{"name":"r0","type":"uint112"},{"name":"r1","type":"uint112"}]}]`)
	reg, err := Build([]*descriptor.ContractInterface{pair, loadERC20(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"erc20", "pair"}, reg.Contracts())

	acc, ok := reg.Lookup("pair", KindEvent, "Sync")
	require.True(t, ok)
	assert.Equal(t, "sync", acc.Spec().Name)

	_, ok = reg.Lookup("pair", KindCall, "sync")
	assert.False(t, ok)
	_, ok = reg.Lookup("weth", KindEvent, "deposit")
	assert.False(t, ok)

	specs := reg.Accessors()
	require.Len(t, specs, 6)
	assert.Equal(t, "erc20", specs[0].Contract)
	assert.Equal(t, "pair", specs[5].Contract)
}

func TestRegistry_DuplicateContract(t *testing.T) {
	t.Parallel()

	_, err := Build([]*descriptor.ContractInterface{loadERC20(t), loadERC20(t)})
	require.ErrorIs(t, err, ErrDuplicateContract)
	require.ErrorIs(t, err, descriptor.ErrMalformedDescriptor)
}
