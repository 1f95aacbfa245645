package runner

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ava-labs/avalanche-streamline/pkg/store"
)

type Kind string

const (
	KindMap   Kind = "map"
	KindStore Kind = "store"
)

var ErrInvalidModule = errors.New("invalid module")

// Module is one script function run against every block. Store modules
// write to their own Store with the capabilities of Policy. A get module
// reads the Store of its Source module instead.
type Module struct {
	Name   string
	Kind   Kind
	Policy store.Policy
	Source string
	Store  *store.Store

	backend store.Backend
}

// ownsStore reports whether m commits and resets its Store.
func (m *Module) ownsStore() bool {
	return m.Store != nil && m.Source == ""
}

// ModuleSpec names a module and how it runs: "name" or "name=map" for a
// map module, "name=store:<set|set_if_not_exists>" for a store module and
// "name=store:get:<source>" for a module reading the store of an earlier
// module.
type ModuleSpec struct {
	Name   string
	Kind   Kind
	Policy store.Policy
	Source string
}

func ParseModuleSpec(s string) (ModuleSpec, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(s), "=")
	if name == "" {
		return ModuleSpec{}, fmt.Errorf("%w: empty name in %q", ErrInvalidModule, s)
	}

	kind, policy, hasPolicy := strings.Cut(rest, ":")
	switch Kind(kind) {
	case "", KindMap:
		if hasPolicy {
			return ModuleSpec{}, fmt.Errorf("%w: map module %s takes no policy", ErrInvalidModule, name)
		}
		return ModuleSpec{Name: name, Kind: KindMap}, nil
	case KindStore:
		if !hasPolicy {
			policy = string(store.PolicySet)
		}
		policy, source, hasSource := strings.Cut(policy, ":")
		p, err := store.ParsePolicy(policy)
		if err != nil {
			return ModuleSpec{}, fmt.Errorf("%w: %s: %w", ErrInvalidModule, name, err)
		}
		switch {
		case p == store.PolicyGet && source == "":
			return ModuleSpec{}, fmt.Errorf("%w: get module %s needs a source store", ErrInvalidModule, name)
		case p != store.PolicyGet && hasSource:
			return ModuleSpec{}, fmt.Errorf("%w: %s module %s takes no source", ErrInvalidModule, p, name)
		}
		return ModuleSpec{Name: name, Kind: KindStore, Policy: p, Source: source}, nil
	default:
		return ModuleSpec{}, fmt.Errorf("%w: unknown kind %q for %s", ErrInvalidModule, kind, name)
	}
}

// BackendFactory opens the committed state of a store module.
type BackendFactory func(module string) (store.Backend, error)

// MemoryBackends keeps every store in memory.
func MemoryBackends(string) (store.Backend, error) {
	return store.NewMemoryBackend(), nil
}

// LevelDBBackends keeps each store in a LevelDB database under dir.
func LevelDBBackends(dir string) BackendFactory {
	return func(module string) (store.Backend, error) {
		return store.NewLevelDBBackend(filepath.Join(dir, module))
	}
}

// OpenModules builds modules from specs. Module names must be unique and
// the source of a get module must be a writing store module listed before
// it. Stores opened before a failure are closed.
func OpenModules(specs []ModuleSpec, open BackendFactory) ([]*Module, error) {
	seen := make(map[string]*Module, len(specs))
	modules := make([]*Module, 0, len(specs))
	for _, spec := range specs {
		if seen[spec.Name] != nil {
			_ = closeModules(modules)
			return nil, fmt.Errorf("%w: duplicate module %s", ErrInvalidModule, spec.Name)
		}

		m := &Module{Name: spec.Name, Kind: spec.Kind, Policy: spec.Policy, Source: spec.Source}
		seen[spec.Name] = m
		switch {
		case spec.Kind == KindStore && spec.Policy == store.PolicyGet:
			src := seen[spec.Source]
			if src == nil || !src.ownsStore() || src.Policy == store.PolicyGet {
				_ = closeModules(modules)
				return nil, fmt.Errorf("%w: source %q of %s is not an earlier store module", ErrInvalidModule, spec.Source, spec.Name)
			}
			m.Store = src.Store
		case spec.Kind == KindStore:
			backend, err := open(spec.Name)
			if err != nil {
				_ = closeModules(modules)
				return nil, fmt.Errorf("failed to open store of %s: %w", spec.Name, err)
			}
			m.backend = backend
			m.Store = store.New(backend)
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func closeModules(modules []*Module) error {
	var errs []error
	for _, m := range modules {
		if m.backend != nil {
			errs = append(errs, m.backend.Close())
		}
	}
	return errors.Join(errs...)
}
