package bindings

import (
	"golang.org/x/text/cases"
)

// AccessorName derives the script-facing name of a descriptor entry by
// Unicode case folding. It depends on nothing but name.
func AccessorName(name string) string {
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(name)
}
