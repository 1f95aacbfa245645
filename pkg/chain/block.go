// Package chain holds the block and log model handed to scripts, along with
// its wire format and the conversion from go-ethereum types.
package chain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is one unit of processing. Logs are in block order.
type Block struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parentHash"`
	Timestamp  uint64      `json:"timestamp"`
	Logs       []*Log      `json:"logs"`
}

type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
	TxHash  common.Hash    `json:"txHash"`
	TxIndex uint           `json:"txIndex"`
	Index   uint           `json:"index"`
	// Ordinal is the position of the log within its block.
	Ordinal uint64 `json:"ordinal"`
}

// NumberU64 returns the block height, or zero when unset.
func (b *Block) NumberU64() uint64 {
	if b == nil || b.Number == nil {
		return 0
	}
	return b.Number.Uint64()
}

// FromGeth flattens the logs of receipts, in receipt order, into a Block and
// assigns their ordinals.
func FromGeth(block *types.Block, receipts []*types.Receipt) *Block {
	b := &Block{
		Number:     block.Number(),
		Hash:       block.Hash(),
		ParentHash: block.ParentHash(),
		Timestamp:  block.Time(),
	}
	for _, r := range receipts {
		if r == nil {
			continue
		}
		for _, l := range r.Logs {
			b.Logs = append(b.Logs, &Log{
				Address: l.Address,
				Topics:  l.Topics,
				Data:    l.Data,
				TxHash:  l.TxHash,
				TxIndex: l.TxIndex,
				Index:   l.Index,
				Ordinal: uint64(len(b.Logs)),
			})
		}
	}
	return b
}

// Marshal encodes the block with its number as a decimal string.
func (b *Block) Marshal() ([]byte, error) {
	type blockAlias Block
	wire := struct {
		*blockAlias
		Number string `json:"number"`
	}{blockAlias: (*blockAlias)(b)}
	if b.Number != nil {
		wire.Number = b.Number.String()
	}
	return json.Marshal(wire)
}

// Unmarshal decodes a block produced by Marshal. Log ordinals missing from
// the input are assigned from log order.
func (b *Block) Unmarshal(data []byte) error {
	type blockAlias Block
	wire := struct {
		*blockAlias
		Number string `json:"number"`
	}{blockAlias: (*blockAlias)(b)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	b.Number = nil
	if wire.Number != "" {
		n, ok := new(big.Int).SetString(wire.Number, 10)
		if !ok {
			return fmt.Errorf("invalid block number %q", wire.Number)
		}
		b.Number = n
	}

	ordered := true
	for i, l := range b.Logs {
		if l == nil {
			return fmt.Errorf("nil log at position %d", i)
		}
		if i > 0 && l.Ordinal <= b.Logs[i-1].Ordinal {
			ordered = false
		}
	}
	if !ordered {
		for i, l := range b.Logs {
			l.Ordinal = uint64(i)
		}
	}
	return nil
}
