package store

import (
	"math/big"

	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
)

// ProjectDeltas converts deltas, which are already in ordinal order, into a
// sequence of {operation, ordinal, key, oldValue, newValue} maps. Absent or
// undecodable values project to null.
func ProjectDeltas(deltas []Delta) dynamic.Value {
	out := make([]dynamic.Value, len(deltas))
	for i, d := range deltas {
		out[i] = dynamic.MapOf(
			"operation", dynamic.Text(d.Operation.String()),
			"ordinal", dynamic.BigInt(new(big.Int).SetUint64(d.Ordinal)),
			"key", dynamic.Text(d.Key),
			"oldValue", decode(d.OldValue),
			"newValue", decode(d.NewValue),
		)
	}
	return dynamic.Sequence(out...)
}
