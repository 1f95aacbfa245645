package chain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeader() *types.Header {
	return &types.Header{
		ParentHash: common.HexToHash("0x01"),
		Number:     big.NewInt(1647),
		Time:       1604768510,
		Difficulty: big.NewInt(1),
		GasLimit:   8_000_000,
	}
}

func TestFromGeth_FlattensReceiptLogs(t *testing.T) {
	t.Parallel()

	token := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	receipts := []*types.Receipt{
		{Logs: []*types.Log{
			{Address: token, Topics: []common.Hash{{0x01}}, Data: []byte{1}, TxIndex: 0, Index: 0},
			{Address: token, Topics: []common.Hash{{0x02}}, Data: []byte{2}, TxIndex: 0, Index: 1},
		}},
		nil,
		{Logs: []*types.Log{
			{Address: token, Topics: []common.Hash{{0x03}}, TxIndex: 2, Index: 2},
		}},
	}

	blk := FromGeth(types.NewBlockWithHeader(newTestHeader()), receipts)

	assert.Equal(t, uint64(1647), blk.NumberU64())
	assert.Equal(t, common.HexToHash("0x01"), blk.ParentHash)
	assert.Equal(t, uint64(1604768510), blk.Timestamp)
	require.Len(t, blk.Logs, 3)
	for i, l := range blk.Logs {
		assert.Equal(t, uint64(i), l.Ordinal)
	}
	assert.Equal(t, common.Hash{0x03}, blk.Logs[2].Topics[0])
}

func TestBlock_MarshalUnmarshal(t *testing.T) {
	t.Parallel()

	n, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	blk := &Block{
		Number: n,
		Hash:   common.HexToHash("0xabc"),
		Logs: []*Log{
			{Address: common.HexToAddress("0xcc"), Topics: []common.Hash{{0x01}}, Data: []byte{0xde, 0xad}, Ordinal: 0},
			{Address: common.HexToAddress("0xdd"), Ordinal: 1},
		},
	}

	data, err := blk.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "123456789012345678901234567890", raw["number"])

	var back Block
	require.NoError(t, back.Unmarshal(data))
	assert.Zero(t, n.Cmp(back.Number))
	assert.Equal(t, blk.Hash, back.Hash)
	require.Len(t, back.Logs, 2)
	assert.Equal(t, []byte{0xde, 0xad}, []byte(back.Logs[0].Data))
}

func TestBlock_UnmarshalAssignsMissingOrdinals(t *testing.T) {
	t.Parallel()

	var blk Block
	err := blk.Unmarshal([]byte(`{
		"number": "7",
		"logs": [
			{"address": "0x00000000000000000000000000000000000000aa", "topics": [], "data": "0x"},
			{"address": "0x00000000000000000000000000000000000000bb", "topics": [], "data": "0x01"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), blk.NumberU64())
	assert.Equal(t, uint64(0), blk.Logs[0].Ordinal)
	assert.Equal(t, uint64(1), blk.Logs[1].Ordinal)
}

func TestBlock_UnmarshalErrors(t *testing.T) {
	t.Parallel()

	var blk Block
	require.Error(t, blk.Unmarshal([]byte(`{"number": "0x10"}`)))
	require.Error(t, blk.Unmarshal([]byte(`{"number": "1", "logs": [null]}`)))
	require.Error(t, blk.Unmarshal([]byte(`not json`)))
}
