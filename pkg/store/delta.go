// Package store implements the versioned key-value store scripts write to
// while a block is evaluated. Every write is tagged with an ordinal and
// recorded as a delta; deltas are applied to the backend on Commit.
package store

import "fmt"

type Operation uint8

const (
	OperationCreate Operation = iota + 1
	OperationUpdate
	OperationDelete
)

func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

// Delta records one mutation. OldValue is nil for creates and NewValue is
// nil for deletes.
type Delta struct {
	Operation Operation
	Ordinal   uint64
	Key       string
	OldValue  []byte
	NewValue  []byte
}
