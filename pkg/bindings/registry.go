package bindings

import (
	"fmt"
	"sort"

	"github.com/ava-labs/avalanche-streamline/pkg/descriptor"
)

// Registry is the process-wide accessor table. It is built once at startup
// and only read afterwards, so it may be shared between goroutines.
type Registry struct {
	tables    map[string]*Table
	contracts []string
}

// NewRegistry indexes tables by contract. Two tables for the same contract
// are fatal.
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if _, ok := r.tables[t.Contract]; ok {
			return nil, fmt.Errorf("%w: %w", ErrDuplicateContract,
				descriptor.Fatalf(t.Contract, t.Contract, "contract registered twice"))
		}
		r.tables[t.Contract] = t
		r.contracts = append(r.contracts, t.Contract)
	}
	sort.Strings(r.contracts)
	return r, nil
}

// Build generates a table for every contract and registers them.
func Build(cis []*descriptor.ContractInterface) (*Registry, error) {
	tables := make([]*Table, 0, len(cis))
	for _, ci := range cis {
		t, err := Generate(ci)
		if err != nil {
			return nil, fmt.Errorf("failed to generate bindings for %s: %w", ci.Name, err)
		}
		tables = append(tables, t)
	}
	return NewRegistry(tables...)
}

// Contracts returns the registered contract names in sorted order.
func (r *Registry) Contracts() []string {
	out := make([]string, len(r.contracts))
	copy(out, r.contracts)
	return out
}

func (r *Registry) Table(contract string) (*Table, bool) {
	t, ok := r.tables[contract]
	return t, ok
}

func (r *Registry) Lookup(contract string, kind Kind, name string) (Accessor, bool) {
	t, ok := r.tables[contract]
	if !ok {
		return nil, false
	}
	return t.Lookup(kind, name)
}

// Accessors lists every accessor spec, grouped by contract in sorted order.
func (r *Registry) Accessors() []Spec {
	var out []Spec
	for _, c := range r.contracts {
		out = append(out, r.tables[c].Describe()...)
	}
	return out
}
